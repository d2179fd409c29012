package parser

import (
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// parseSurgeINI decodes the [Proxy] section of a Surge-style config.
//
// Surge's proxy line dialect ("name = type, host, port, key=value, ...") is
// not valid INI (repeated un-keyed positional values after the type), so
// this is a small hand-rolled line scanner rather than a gopkg.in/ini.v1
// read — no library in the retrieval pack offers this shape either.
func parseSurgeINI(raw string) ([]*node.Node, error) {
	lines := strings.Split(raw, "\n")
	inProxy := false
	var nodes []*node.Node

	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inProxy = strings.EqualFold(line, "[Proxy]")
			continue
		}
		if !inProxy {
			continue
		}
		n, err := parseSurgeProxyLine(line)
		if err != nil {
			// Malformed single line: dropped with a warning per spec.md
			// §4.C2 failure policy; caller logs, we just skip here.
			continue
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no [Proxy] entries found")
	}
	return nodes, nil
}

func parseSurgeProxyLine(line string) (*node.Node, error) {
	name, rest, ok := strings.Cut(line, "=")
	if !ok {
		return nil, fmt.Errorf("missing '='")
	}
	name = strings.TrimSpace(name)
	fields := splitSurgeFields(rest)
	if len(fields) < 3 {
		return nil, fmt.Errorf("too few fields")
	}

	typ := strings.ToLower(strings.TrimSpace(fields[0]))
	host := strings.TrimSpace(fields[1])
	portStr := strings.TrimSpace(fields[2])

	opts := map[string]string{}
	for _, f := range fields[3:] {
		if k, v, ok := strings.Cut(f, "="); ok {
			opts[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	var kind node.Kind
	switch typ {
	case "ss", "shadowsocks":
		kind = node.KindSS
	case "vmess":
		kind = node.KindVMess
	case "trojan":
		kind = node.KindTrojan
	case "socks5", "socks5-tls":
		kind = node.KindSocks5
	case "http", "https":
		kind = node.KindHTTP
	case "snell":
		kind = node.KindSnell
	default:
		return nil, nil // not a recognised proxy type (e.g. "direct"); skip silently
	}

	payload := map[string]any{}
	for k, v := range opts {
		payload[k] = v
	}

	n := &node.Node{
		Kind:      kind,
		GroupName: node.DefaultGroupName(kind),
		Remark:    name,
		Server:    host,
		Port:      parsePortString(portStr),
		Payload:   payload,
	}
	if v, ok := opts["udp-relay"]; ok {
		n.UDP = node.TriFromBool(v == "true")
	}
	if v, ok := opts["tfo"]; ok {
		n.TFO = node.TriFromBool(v == "true")
	}
	if v, ok := opts["skip-cert-verify"]; ok {
		n.SkipCertVerify = node.TriFromBool(v == "true")
	}
	return n, nil
}

// splitSurgeFields splits a Surge proxy-definition tail on commas, but
// ignores commas that appear inside a quoted value (used for obfs/ws
// headers carrying commas themselves).
func splitSurgeFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}
