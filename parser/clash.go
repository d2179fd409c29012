package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/subconverter-go/subconverter/node"
)

type clashDoc struct {
	Proxies []map[string]any `yaml:"proxies"`
	Proxy   []map[string]any `yaml:"Proxy"`
}

// parseClashYAML decodes a Clash config's `proxies:`/`Proxy:` list into
// Nodes. Each map entry's `type` field selects the kind-specific payload
// shape; unrecognised types are skipped with no error (a Clash config may
// legally mix proxy kinds we don't understand, e.g. future protocols).
func parseClashYAML(raw string) ([]*node.Node, error) {
	var doc clashDoc
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	entries := doc.Proxies
	if len(entries) == 0 {
		entries = doc.Proxy
	}

	nodes := make([]*node.Node, 0, len(entries))
	for _, p := range entries {
		n := clashProxyToNode(p)
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func clashProxyToNode(p map[string]any) *node.Node {
	typ, _ := p["type"].(string)
	var kind node.Kind
	switch typ {
	case "ss":
		kind = node.KindSS
	case "ssr":
		kind = node.KindSSR
	case "vmess":
		kind = node.KindVMess
	case "trojan":
		kind = node.KindTrojan
	case "snell":
		kind = node.KindSnell
	case "socks5":
		kind = node.KindSocks5
	case "http":
		kind = node.KindHTTP
	default:
		return nil
	}

	name, _ := p["name"].(string)
	server, _ := p["server"].(string)
	port := clashPort(p["port"])

	payload := map[string]any{}
	for _, key := range []string{"cipher", "password", "uuid", "alterId", "network", "ws-path", "ws-opts",
		"obfs", "protocol", "obfs-param", "protocol-param", "sni", "tls", "skip-cert-verify", "udp", "plugin", "plugin-opts"} {
		if v, ok := p[key]; ok {
			payload[key] = v
		}
	}

	n := &node.Node{
		Kind:      kind,
		GroupName: node.DefaultGroupName(kind),
		Remark:    name,
		Server:    server,
		Port:      port,
		Payload:   payload,
	}
	if v, ok := p["udp"].(bool); ok {
		n.UDP = node.TriFromBool(v)
	}
	if v, ok := p["skip-cert-verify"].(bool); ok {
		n.SkipCertVerify = node.TriFromBool(v)
	}
	if kind == node.KindSSR {
		return downcastSSRtoSS(n)
	}
	return n
}

func clashPort(v any) *uint16 {
	switch x := v.(type) {
	case int:
		p := uint16(x)
		return &p
	case float64:
		p := uint16(x)
		return &p
	case string:
		return parsePortString(x)
	}
	return nil
}
