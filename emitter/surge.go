package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// surgeNextLoopbackPort is the rotating local port assigned to each SSR
// node emitted via the Surge 2/3 `external, exec=...` shim, starting at
// 1080 per request (spec.md §4.C6 "Surge 2/3/4").
type surgeLoopbackPorts struct{ next int }

func newSurgeLoopbackPorts() *surgeLoopbackPorts { return &surgeLoopbackPorts{next: 1080} }

func (p *surgeLoopbackPorts) take() int {
	port := p.next
	p.next++
	return port
}

// EmitSurge renders Surge 2/3/4 INI. surfboard narrows the allowed rule
// vocabulary (no USER-AGENT/URL-REGEX/AND/OR/NOT) per spec.md §4.C6
// "Surfboard".
func EmitSurge(req Request, version int, surfboard bool) ([]byte, error) {
	var b strings.Builder

	if req.ManagedConfigURL != "" {
		b.WriteString(managedConfigHeader(req.ManagedConfigURL, req.Settings.Interval, req.Settings.Strict))
	}

	b.WriteString("[Proxy]\n")
	names := make([]string, 0, len(req.Nodes))
	ports := newSurgeLoopbackPorts()
	for _, n := range req.Nodes {
		line := buildSurgeProxyLine(n, version, ports)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		names = append(names, n.Remark)
	}

	if !req.Settings.NodelistMode {
		b.WriteString("\n[Proxy Group]\n")
		for _, g := range req.Groups {
			b.WriteString(buildSurgeGroup(g))
			b.WriteString("\n")
		}

		b.WriteString("\n[Rule]\n")
		for _, line := range req.Rules {
			if surfboard && !surfboardAllows(line) {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

func surfboardAllows(line string) bool {
	upper := strings.ToUpper(line)
	for _, banned := range []string{"USER-AGENT", "URL-REGEX", "AND,", "OR,", "NOT,"} {
		if strings.HasPrefix(upper, banned) {
			return false
		}
	}
	return true
}

func buildSurgeGroup(g ExpandedGroup) string {
	name := g.Spec.Name
	members := g.Members
	if literalGroupOverride(name) {
		return fmt.Sprintf("%s = select, %s", name, name)
	}
	kind := "select"
	switch g.Spec.Type {
	case "url-test":
		kind = "url-test"
	case "fallback":
		kind = "fallback"
	case "load-balance":
		kind = "load-balance"
	}
	parts := []string{kind}
	parts = append(parts, members...)
	line := fmt.Sprintf("%s = %s", name, strings.Join(parts, ", "))
	if g.Spec.TestURL != "" {
		line += ", url=" + g.Spec.TestURL
	}
	if g.Spec.Interval > 0 {
		line += ", interval=" + strconv.Itoa(g.Spec.Interval)
	}
	return line
}

func buildSurgeProxyLine(n *node.Node, version int, ports *surgeLoopbackPorts) string {
	switch n.Kind {
	case node.KindSS:
		return surgeShadowsocks(n)
	case node.KindSSR:
		if version >= 4 {
			return surgeSSRNative(n)
		}
		return surgeSSRExternal(n, ports)
	case node.KindVMess:
		return surgeVMess(n)
	case node.KindTrojan:
		return surgeTrojan(n)
	case node.KindSocks5:
		return surgeSocks(n)
	case node.KindHTTP, node.KindHTTPS:
		return surgeHTTP(n)
	default:
		return ""
	}
}

func surgeShadowsocks(n *node.Node) string {
	cipher := n.PayloadString("method")
	if cipher == "" {
		return ""
	}
	parts := []string{
		fmt.Sprintf("%s = ss", n.Remark),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
		"encrypt-method=" + cipher,
		"password=" + n.PayloadString("password"),
	}
	parts = append(parts, surgeTriFlags(n)...)
	if plugin := n.PayloadString("plugin"); strings.Contains(plugin, "obfs") {
		if opts := n.PayloadString("plugin-opts"); opts != "" {
			parts = append(parts, surgeObfsFromPluginOpts(opts)...)
		}
	}
	return strings.Join(parts, ", ")
}

func surgeObfsFromPluginOpts(opts string) []string {
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

// surgeSSRNative emits an SSR node with the Surge 4 native ssr= scheme.
func surgeSSRNative(n *node.Node) string {
	parts := []string{
		fmt.Sprintf("%s = ssr", n.Remark),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
		"encrypt-method=" + n.PayloadString("method"),
		"password=" + n.PayloadString("password"),
		"protocol=" + n.PayloadString("protocol"),
		"obfs=" + n.PayloadString("obfs"),
	}
	if pp := n.PayloadString("protocolparam"); pp != "" {
		parts = append(parts, "protocol-param="+pp)
	}
	if op := n.PayloadString("obfsparam"); op != "" {
		parts = append(parts, "obfs-param="+op)
	}
	parts = append(parts, surgeTriFlags(n)...)
	return strings.Join(parts, ", ")
}

// surgeSSRExternal emits the Surge 2/3 `external` shim: SSR isn't natively
// understood, so the node is represented as a local SS client (ss-local
// equivalent) listening on a rotating loopback port, with Surge's `[Proxy]`
// entry pointing at that port over plain SS (spec.md §4.C6 "Surge 2/3/4").
func surgeSSRExternal(n *node.Node, ports *surgeLoopbackPorts) string {
	port := ports.take()
	exec := fmt.Sprintf(
		"exec=\"ssr-local\", args=\"-s\", args=\"%s\", args=\"-p\", args=\"%d\", args=\"-m\", args=\"%s\", args=\"-k\", args=\"%s\", args=\"-o\", args=\"%s\", args=\"-O\", args=\"%s\", args=\"-l\", args=\"%d\"",
		n.Server, n.PortOrZero(), n.PayloadString("method"), n.PayloadString("password"),
		n.PayloadString("obfs"), n.PayloadString("protocol"), port,
	)
	return fmt.Sprintf("%s = external, %s, addresses=%s, local-port=%d", n.Remark, exec, n.Server, port)
}

func surgeVMess(n *node.Node) string {
	parts := []string{
		fmt.Sprintf("%s = vmess", n.Remark),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
		"username=" + n.PayloadString("uuid"),
	}
	if n.PayloadBool("tls") {
		parts = append(parts, "tls=true")
		if sni := n.PayloadString("sni"); sni != "" {
			parts = append(parts, "sni="+sni)
		}
	}
	if network := n.PayloadString("network"); network == "ws" {
		parts = append(parts, "ws=true")
		if path := n.PayloadString("path"); path != "" {
			parts = append(parts, "ws-path="+path)
		}
		if host := n.PayloadString("host"); host != "" {
			parts = append(parts, "ws-headers=Host:"+host)
		}
	}
	parts = append(parts, surgeTriFlags(n)...)
	return strings.Join(parts, ", ")
}

func surgeTrojan(n *node.Node) string {
	parts := []string{
		fmt.Sprintf("%s = trojan", n.Remark),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
		"password=" + n.PayloadString("password"),
	}
	if sni := n.PayloadString("sni"); sni != "" {
		parts = append(parts, "sni="+sni)
	}
	parts = append(parts, surgeTriFlags(n)...)
	return strings.Join(parts, ", ")
}

func surgeSocks(n *node.Node) string {
	parts := []string{
		fmt.Sprintf("%s = socks5", n.Remark),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
	}
	if u := n.PayloadString("username"); u != "" {
		parts = append(parts, "username="+u, "password="+n.PayloadString("password"))
	}
	return strings.Join(parts, ", ")
}

func surgeHTTP(n *node.Node) string {
	kind := "http"
	if n.Kind == node.KindHTTPS {
		kind = "https"
	}
	parts := []string{
		fmt.Sprintf("%s = %s", n.Remark, kind),
		n.Server,
		strconv.Itoa(int(n.PortOrZero())),
	}
	if u := n.PayloadString("username"); u != "" {
		parts = append(parts, "username="+u, "password="+n.PayloadString("password"))
	}
	return strings.Join(parts, ", ")
}

func surgeTriFlags(n *node.Node) []string {
	var out []string
	if v, ok := n.TFO.Bool(); ok {
		out = append(out, "tfo="+strconv.FormatBool(v))
	}
	if v, ok := n.UDP.Bool(); ok {
		out = append(out, "udp-relay="+strconv.FormatBool(v))
	}
	if v, ok := n.SkipCertVerify.Bool(); ok {
		out = append(out, "skip-cert-verify="+strconv.FormatBool(v))
	}
	return out
}
