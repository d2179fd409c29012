package parser

import (
	"encoding/json"
	"fmt"

	"github.com/subconverter-go/subconverter/node"
)

// parseJSONSniff handles the JSON-shaped inputs of spec.md §4.C2 bullet 5:
// v2rayN export (array of vmess objects), Shadowsocks-windows /
// SSR-windows / SS-Android / SSTap config exports, and Netch's JSON list.
// The shape is sniffed from which keys are present since none of these
// formats carries a self-describing type tag.
func parseJSONSniff(raw string) ([]*node.Node, error) {
	var any1 any
	if err := json.Unmarshal([]byte(raw), &any1); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	switch v := any1.(type) {
	case []any:
		return parseJSONArray(v)
	case map[string]any:
		if configs, ok := v["configs"]; ok { // SS-Android wraps its list under "configs"
			if arr, ok := configs.([]any); ok {
				return parseJSONArray(arr)
			}
		}
		if configs, ok := v["Configs"]; ok { // SSTap
			if arr, ok := configs.([]any); ok {
				return parseJSONArray(arr)
			}
		}
		if n := jsonObjectToNode(v); n != nil {
			return []*node.Node{n}, nil
		}
		return nil, fmt.Errorf("no recognised proxy object")
	default:
		return nil, fmt.Errorf("unsupported JSON top level %T", v)
	}
}

func parseJSONArray(arr []any) ([]*node.Node, error) {
	var nodes []*node.Node
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if n := jsonObjectToNode(obj); n != nil {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no recognised proxy objects in array")
	}
	return nodes, nil
}

func jsonObjectToNode(obj map[string]any) *node.Node {
	str := func(k string) string { v, _ := obj[k].(string); return v }

	// v2rayN / generic vmess export.
	if _, ok := obj["v"]; ok {
		if _, hasID := obj["id"]; hasID {
			n := &node.Node{
				Kind:      node.KindVMess,
				GroupName: node.DefaultGroupName(node.KindVMess),
				Remark:    orDefault(str("ps"), str("add")),
				Server:    str("add"),
				Port:      parsePortString(fmt.Sprint(obj["port"])),
				Payload: map[string]any{
					"uuid":    str("id"),
					"alterId": toInt(obj["aid"]),
					"network": orDefault(str("net"), "tcp"),
					"host":    str("host"),
					"path":    str("path"),
					"tls":     str("tls") == "tls",
				},
			}
			return n
		}
	}

	// SSR-windows: has "protocol"/"obfs"/"method" plus "server"/"server_port".
	if _, hasProtocol := obj["protocol"]; hasProtocol {
		if _, hasServer := obj["server"]; hasServer {
			n := &node.Node{
				Kind:      node.KindSSR,
				GroupName: node.DefaultGroupName(node.KindSSR),
				Remark:    orDefault(str("remarks"), str("server")),
				Server:    str("server"),
				Port:      parsePortString(fmt.Sprint(obj["server_port"])),
				Payload: map[string]any{
					"method":        str("method"),
					"password":      str("password"),
					"protocol":      str("protocol"),
					"obfs":          str("obfs"),
					"protocolparam": str("protocolparam"),
					"obfsparam":     str("obfsparam"),
				},
			}
			return downcastSSRtoSS(n)
		}
	}

	// Shadowsocks-windows / SIP008 item: server/server_port/password/method.
	if _, hasServer := obj["server"]; hasServer {
		if _, hasMethod := obj["method"]; hasMethod {
			n := &node.Node{
				Kind:      node.KindSS,
				GroupName: node.DefaultGroupName(node.KindSS),
				Remark:    orDefault(str("remarks"), str("server")),
				Server:    str("server"),
				Port:      parsePortString(fmt.Sprint(obj["server_port"])),
				Payload: map[string]any{
					"method":   str("method"),
					"password": str("password"),
					"plugin":   str("plugin"),
					"plugin-opts": str("plugin_opts"),
				},
			}
			return n
		}
	}

	// Netch-style list entry.
	if _, hasHostname := obj["Hostname"]; hasHostname {
		kind := node.KindSS
		switch str("Type") {
		case "VMess":
			kind = node.KindVMess
		case "Trojan":
			kind = node.KindTrojan
		}
		port := parsePortString(fmt.Sprint(obj["Port"]))
		n := &node.Node{
			Kind:      kind,
			GroupName: node.DefaultGroupName(kind),
			Remark:    orDefault(str("Remark"), str("Hostname")),
			Server:    str("Hostname"),
			Port:      port,
			Payload: map[string]any{
				"uuid":     str("UID"),
				"method":   str("EncryptMethod"),
				"password": str("Password"),
			},
		}
		return n
	}

	return nil
}
