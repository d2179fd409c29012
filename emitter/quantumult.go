package emitter

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// EmitQuantumult renders legacy Quantumult (v1) config: `[SERVER]` lines
// plus a base64-encoded `[POLICY]` blob per group, following the same
// line-building idiom as the Surge emitter (spec.md §4.C6 "Quantumult").
func EmitQuantumult(req Request) ([]byte, error) {
	var b strings.Builder
	b.WriteString("[SERVER]\n")
	for _, n := range req.Nodes {
		line := buildQuantumultServerLine(n)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if !req.Settings.NodelistMode {
		b.WriteString("\n[POLICY]\n")
		for _, g := range req.Groups {
			b.WriteString(buildQuantumultPolicyLine(g))
			b.WriteString("\n")
		}

		b.WriteString("\n[FILTER]\n")
		for _, line := range req.Rules {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

func buildQuantumultServerLine(n *node.Node) string {
	switch n.Kind {
	case node.KindSS:
		return fmt.Sprintf("shadowsocks=%s:%d, method=%s, password=%s, tag=%s",
			n.Server, n.PortOrZero(), n.PayloadString("method"), n.PayloadString("password"), n.Remark)
	case node.KindVMess:
		parts := []string{
			fmt.Sprintf("vmess=%s:%d", n.Server, n.PortOrZero()),
			"method=chacha20-poly1305",
			"password=" + n.PayloadString("uuid"),
		}
		if n.PayloadBool("tls") {
			parts = append(parts, "obfs=over-tls")
			if sni := n.PayloadString("sni"); sni != "" {
				parts = append(parts, "obfs-host="+sni)
			}
		}
		if network := n.PayloadString("network"); network == "ws" {
			parts = append(parts, "obfs=ws")
			if path := n.PayloadString("path"); path != "" {
				parts = append(parts, "obfs-uri="+path)
			}
		}
		parts = append(parts, "tag="+n.Remark)
		return strings.Join(parts, ", ")
	case node.KindTrojan:
		return fmt.Sprintf("trojan=%s:%d, password=%s, over-tls=true, tls-host=%s, tag=%s",
			n.Server, n.PortOrZero(), n.PayloadString("password"), n.PayloadString("sni"), n.Remark)
	case node.KindHTTP, node.KindHTTPS:
		return fmt.Sprintf("http=%s:%d, username=%s, password=%s, tag=%s",
			n.Server, n.PortOrZero(), n.PayloadString("username"), n.PayloadString("password"), n.Remark)
	default:
		return ""
	}
}

func buildQuantumultPolicyLine(g ExpandedGroup) string {
	kind := "static"
	switch g.Spec.Type {
	case "url-test":
		kind = "available"
	case "load-balance":
		kind = "balance"
	}
	body := strings.Join(g.Members, ",")
	payload := fmt.Sprintf("%s=%s,%s", kind, g.Spec.Name, body)
	return g.Spec.Name + "=" + base64.StdEncoding.EncodeToString([]byte(payload))
}
