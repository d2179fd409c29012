package emitter

import (
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// EmitQuantumultX renders Quantumult X config: `[server_local]` comma
// key=value lines plus `[policy]` group lines; the device-id header used
// by the `/qx-rewrite` and `/qx-script` indirection endpoints is recorded
// in Settings.QuantumultXDevID but is an HTTP-layer concern, not rendered
// here (spec.md §4.C6 "Quantumult X", §6 endpoint table).
func EmitQuantumultX(req Request) ([]byte, error) {
	var b strings.Builder
	b.WriteString("[server_local]\n")
	for _, n := range req.Nodes {
		line := buildQuanXServerLine(n)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if !req.Settings.NodelistMode {
		b.WriteString("\n[policy]\n")
		for _, g := range req.Groups {
			b.WriteString(buildQuanXPolicyLine(g))
			b.WriteString("\n")
		}

		b.WriteString("\n[filter_remote]\n")
		for _, line := range req.Rules {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

func buildQuanXServerLine(n *node.Node) string {
	switch n.Kind {
	case node.KindSS:
		parts := []string{
			fmt.Sprintf("shadowsocks=%s:%d", n.Server, n.PortOrZero()),
			"method=" + n.PayloadString("method"),
			"password=" + n.PayloadString("password"),
		}
		if plugin := n.PayloadString("plugin"); strings.Contains(plugin, "obfs") {
			parts = append(parts, quanXObfsArgs(n.PayloadString("plugin-opts"))...)
		}
		parts = append(parts, "fast-open="+triToQuanX(n.TFO), "udp-relay="+triToQuanX(n.UDP), "tag="+n.Remark)
		return strings.Join(parts, ", ")
	case node.KindSSR:
		parts := []string{
			fmt.Sprintf("shadowsocksr=%s:%d", n.Server, n.PortOrZero()),
			"method=" + n.PayloadString("method"),
			"password=" + n.PayloadString("password"),
			"ssr-protocol=" + n.PayloadString("protocol"),
			"ssr-protocol-param=" + n.PayloadString("protocolparam"),
			"obfs=" + n.PayloadString("obfs"),
			"obfs-host=" + n.PayloadString("obfsparam"),
			"tag=" + n.Remark,
		}
		return strings.Join(parts, ", ")
	case node.KindVMess:
		parts := []string{
			fmt.Sprintf("vmess=%s:%d", n.Server, n.PortOrZero()),
			"method=" + orDefault(n.PayloadString("method"), "chacha20-poly1305"),
			"password=" + n.PayloadString("uuid"),
		}
		if n.PayloadBool("tls") {
			parts = append(parts, "obfs=over-tls")
			if sni := n.PayloadString("sni"); sni != "" {
				parts = append(parts, "tls-host="+sni)
			}
		}
		if network := n.PayloadString("network"); network == "ws" {
			parts = append(parts, "obfs=ws")
			if path := n.PayloadString("path"); path != "" {
				parts = append(parts, "obfs-uri="+path)
			}
			if host := n.PayloadString("host"); host != "" {
				parts = append(parts, "obfs-host="+host)
			}
		}
		parts = append(parts, "fast-open="+triToQuanX(n.TFO), "udp-relay="+triToQuanX(n.UDP), "tag="+n.Remark)
		return strings.Join(parts, ", ")
	case node.KindTrojan:
		parts := []string{
			fmt.Sprintf("trojan=%s:%d", n.Server, n.PortOrZero()),
			"password=" + n.PayloadString("password"),
			"over-tls=true",
		}
		if sni := n.PayloadString("sni"); sni != "" {
			parts = append(parts, "tls-host="+sni)
		}
		parts = append(parts, "tag="+n.Remark)
		return strings.Join(parts, ", ")
	case node.KindHTTP, node.KindHTTPS:
		return fmt.Sprintf("http=%s:%d, username=%s, password=%s, over-tls=%t, tag=%s",
			n.Server, n.PortOrZero(), n.PayloadString("username"), n.PayloadString("password"),
			n.Kind == node.KindHTTPS, n.Remark)
	default:
		return ""
	}
}

func quanXObfsArgs(opts string) []string {
	var mode, host string
	for _, kv := range strings.Split(opts, ";") {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "obfs":
			mode = v
		case "obfs-host":
			host = v
		}
	}
	if mode == "" {
		return nil
	}
	out := []string{"obfs=" + mode}
	if host != "" {
		out = append(out, "obfs-host="+host)
	}
	return out
}

func triToQuanX(t node.Tri) string {
	if v, ok := t.Bool(); ok && v {
		return "true"
	}
	return "false"
}

func buildQuanXPolicyLine(g ExpandedGroup) string {
	kind := "static"
	switch g.Spec.Type {
	case "url-test":
		kind = "url-latency-benchmark"
	case "fallback":
		kind = "smart"
	case "load-balance":
		kind = "round-robin"
	}
	parts := []string{fmt.Sprintf("%s=%s", kind, g.Spec.Name)}
	parts = append(parts, g.Members...)
	if g.Spec.TestURL != "" {
		parts = append(parts, "check-interval="+fmt.Sprintf("%d", orDefaultInt(g.Spec.Interval, 300)), "img-url="+g.Spec.TestURL)
	}
	return strings.Join(parts, ", ")
}

func orDefaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
