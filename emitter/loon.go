package emitter

import (
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// EmitLoon renders Loon INI, embedding TLS parameters inline as
// `over-tls:true,tls-name:<sni>` rather than Surge's separate `tls=`/`sni=`
// fields (spec.md §4.C6 "Loon").
func EmitLoon(req Request) ([]byte, error) {
	var b strings.Builder
	b.WriteString("[Proxy]\n")
	for _, n := range req.Nodes {
		line := buildLoonProxyLine(n)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if !req.Settings.NodelistMode {
		b.WriteString("\n[Proxy Group]\n")
		for _, g := range req.Groups {
			b.WriteString(buildLoonGroupLine(g))
			b.WriteString("\n")
		}
		b.WriteString("\n[Rule]\n")
		for _, line := range req.Rules {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

func buildLoonProxyLine(n *node.Node) string {
	switch n.Kind {
	case node.KindSS:
		return fmt.Sprintf("%s = shadowsocks, %s, %d, %s, %q",
			n.Remark, n.Server, n.PortOrZero(), n.PayloadString("method"), n.PayloadString("password"))
	case node.KindSSR:
		return fmt.Sprintf("%s = shadowsocksr, %s, %d, %s, %q, protocol=%s, protocol-param=%s, obfs=%s, obfs-param=%s",
			n.Remark, n.Server, n.PortOrZero(), n.PayloadString("method"), n.PayloadString("password"),
			n.PayloadString("protocol"), n.PayloadString("protocolparam"), n.PayloadString("obfs"), n.PayloadString("obfsparam"))
	case node.KindVMess:
		parts := []string{
			fmt.Sprintf("%s = vmess", n.Remark),
			n.Server,
			fmt.Sprintf("%d", n.PortOrZero()),
			"\"" + n.PayloadString("uuid") + "\"",
		}
		if n.PayloadBool("tls") {
			parts = append(parts, "over-tls:true")
			if sni := n.PayloadString("sni"); sni != "" {
				parts = append(parts, "tls-name:"+sni)
			}
		}
		if network := n.PayloadString("network"); network == "ws" {
			parts = append(parts, "transport:ws")
			if path := n.PayloadString("path"); path != "" {
				parts = append(parts, "path:"+path)
			}
			if host := n.PayloadString("host"); host != "" {
				parts = append(parts, "host:"+host)
			}
		}
		return strings.Join(parts, ",")
	case node.KindTrojan:
		parts := []string{
			fmt.Sprintf("%s = trojan", n.Remark),
			n.Server,
			fmt.Sprintf("%d", n.PortOrZero()),
			"\"" + n.PayloadString("password") + "\"",
		}
		if sni := n.PayloadString("sni"); sni != "" {
			parts = append(parts, "tls-name:"+sni)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

func buildLoonGroupLine(g ExpandedGroup) string {
	kind := "select"
	switch g.Spec.Type {
	case "url-test":
		kind = "url-test"
	case "fallback":
		kind = "fallback"
	}
	parts := []string{kind}
	parts = append(parts, g.Members...)
	return fmt.Sprintf("%s = %s", g.Spec.Name, strings.Join(parts, ","))
}
