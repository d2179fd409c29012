package emitter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
)

// EmitClash renders the Clash (or, with ssr=true, ClashR) YAML artifact.
// Field names toggle between the legacy ("Proxy"/"Proxy Group"/"Rule") and
// new ("proxies"/"proxy-groups"/"rules") spellings per
// Settings.ClashNewFieldName (spec.md §4.C6).
func EmitClash(req Request, ssr bool) ([]byte, error) {
	proxyKey, groupKey, ruleKey := "Proxy", "Proxy Group", "Rule"
	if req.Settings.ClashNewFieldName {
		proxyKey, groupKey, ruleKey = "proxies", "proxy-groups", "rules"
	}

	doc := loadClashBaseTemplate(req.BaseTemplate)

	proxies := make([]map[string]any, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		p := buildClashProxy(n, ssr)
		if p == nil {
			continue
		}
		proxies = append(proxies, p)
	}
	if req.Settings.OverwriteOriginalRules {
		doc[proxyKey] = proxies
	} else {
		doc[proxyKey] = append(asMapSlice(doc[proxyKey]), proxies...)
	}

	if !req.Settings.NodelistMode {
		groups := make([]map[string]any, 0, len(req.Groups))
		for _, g := range req.Groups {
			groups = append(groups, buildClashGroup(g))
		}
		if req.Settings.OverwriteOriginalRules {
			doc[groupKey] = groups
		} else {
			doc[groupKey] = append(asMapSlice(doc[groupKey]), groups...)
		}

		rules := buildClashRules(req.Rules)
		if req.Settings.OverwriteOriginalRules {
			doc[ruleKey] = rules
		} else {
			doc[ruleKey] = append(asStringSlice(doc[ruleKey]), rules...)
		}
	} else {
		delete(doc, groupKey)
		delete(doc, ruleKey)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadClashBaseTemplate(base []byte) map[string]any {
	doc := map[string]any{}
	if len(base) > 0 {
		_ = yaml.Unmarshal(base, &doc)
	}
	return doc
}

func asMapSlice(v any) []map[string]any {
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func asStringSlice(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// buildClashProxy dispatches per node.Kind, returning nil for kinds Clash
// cannot represent at all (e.g. plain HTTP/HTTPS with no TLS info).
func buildClashProxy(n *node.Node, ssr bool) map[string]any {
	switch n.Kind {
	case node.KindSS:
		return buildClashSS(n)
	case node.KindSSR:
		if !ssr {
			return nil // SSR never appears in a non-R Clash output (S2).
		}
		return buildClashSSR(n)
	case node.KindVMess:
		return buildClashVMess(n)
	case node.KindTrojan:
		return buildClashTrojan(n)
	case node.KindSocks5:
		return buildClashSocks(n)
	case node.KindSnell:
		return buildClashSnell(n)
	default:
		return nil
	}
}

func buildClashSS(n *node.Node) map[string]any {
	p := map[string]any{
		"name":     n.Remark,
		"type":     "ss",
		"server":   n.Server,
		"port":     n.PortOrZero(),
		"cipher":   n.PayloadString("method"),
		"password": n.PayloadString("password"),
	}
	if plugin := n.PayloadString("plugin"); plugin != "" {
		p["plugin"] = strings.TrimSuffix(plugin, "-plugin")
		if opts := n.PayloadString("plugin-opts"); opts != "" {
			p["plugin-opts"] = parsePluginOpts(opts)
		}
	}
	applyTriFlags(p, n)
	return p
}

func buildClashSSR(n *node.Node) map[string]any {
	p := map[string]any{
		"name":       n.Remark,
		"type":       "ssr",
		"server":     n.Server,
		"port":       n.PortOrZero(),
		"cipher":     n.PayloadString("method"),
		"password":   n.PayloadString("password"),
		"protocol":   n.PayloadString("protocol"),
		"obfs":       n.PayloadString("obfs"),
		"obfs-param": n.PayloadString("obfsparam"),
		"protocol-param": n.PayloadString("protocolparam"),
	}
	applyTriFlags(p, n)
	return p
}

func buildClashVMess(n *node.Node) map[string]any {
	p := map[string]any{
		"name":    n.Remark,
		"type":    "vmess",
		"server":  n.Server,
		"port":    n.PortOrZero(),
		"uuid":    n.PayloadString("uuid"),
		"alterId": n.PayloadInt("alterId"),
		"cipher":  orDefault(n.PayloadString("method"), "auto"),
	}
	if n.PayloadBool("tls") {
		p["tls"] = true
		if sni := n.PayloadString("sni"); sni != "" {
			p["servername"] = sni
		}
	}
	switch network := n.PayloadString("network"); network {
	case "ws":
		p["network"] = "ws"
		wsOpts := map[string]any{"path": n.PayloadString("path")}
		if host := n.PayloadString("host"); host != "" {
			wsOpts["headers"] = map[string]any{"Host": host}
		}
		p["ws-opts"] = wsOpts
	case "grpc":
		p["network"] = "grpc"
		p["grpc-opts"] = map[string]any{"grpc-service-name": n.PayloadString("path")}
	case "h2", "http":
		p["network"] = "http"
		p["http-opts"] = map[string]any{
			"path":    []string{orDefault(n.PayloadString("path"), "/")},
			"headers": map[string]any{"Host": []string{n.PayloadString("host")}},
		}
	}
	applyTriFlags(p, n)
	return p
}

func buildClashTrojan(n *node.Node) map[string]any {
	p := map[string]any{
		"name":     n.Remark,
		"type":     "trojan",
		"server":   n.Server,
		"port":     n.PortOrZero(),
		"password": n.PayloadString("password"),
	}
	if sni := n.PayloadString("sni"); sni != "" {
		p["sni"] = sni
	}
	if network := n.PayloadString("network"); network == "ws" {
		p["network"] = "ws"
		p["ws-opts"] = map[string]any{"path": n.PayloadString("path")}
	}
	applyTriFlags(p, n)
	return p
}

func buildClashSocks(n *node.Node) map[string]any {
	return map[string]any{
		"name":     n.Remark,
		"type":     "socks5",
		"server":   n.Server,
		"port":     n.PortOrZero(),
		"username": n.PayloadString("username"),
		"password": n.PayloadString("password"),
	}
}

func buildClashSnell(n *node.Node) map[string]any {
	return map[string]any{
		"name":   n.Remark,
		"type":   "snell",
		"server": n.Server,
		"port":   n.PortOrZero(),
		"psk":    n.PayloadString("psk"),
	}
}

func applyTriFlags(p map[string]any, n *node.Node) {
	if v, ok := n.UDP.Bool(); ok {
		p["udp"] = v
	}
	if v, ok := n.SkipCertVerify.Bool(); ok {
		p["skip-cert-verify"] = v
	}
	if v, ok := n.TLS13.Bool(); ok {
		p["tls13"] = v
	}
}

func parsePluginOpts(opts string) map[string]any {
	out := map[string]any{}
	for _, kv := range strings.Split(opts, ";") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		} else if kv != "" {
			out[kv] = true
		}
	}
	return out
}

func buildClashGroup(g ExpandedGroup) map[string]any {
	name := g.Spec.Name
	members := g.Members
	if literalGroupOverride(name) {
		return map[string]any{"name": name, "type": "select", "proxies": []string{name}}
	}
	out := map[string]any{
		"name":    name,
		"type":    string(g.Spec.Type),
		"proxies": members,
	}
	switch g.Spec.Type {
	case group.TypeURLTest, group.TypeFallback, group.TypeLoadBalance:
		if g.Spec.TestURL != "" {
			out["url"] = g.Spec.TestURL
		}
		if g.Spec.Interval > 0 {
			out["interval"] = g.Spec.Interval
		}
		if g.Spec.Tolerance > 0 {
			out["tolerance"] = g.Spec.Tolerance
		}
	}
	return out
}

// buildClashRules renders already-grouped Surge-flavoured
// `TYPE,VALUE,GROUP[,no-resolve]` lines (ruleset.Join attaches the group),
// translating the bare `FINAL[,GROUP]` catch-all into Clash's `MATCH,GROUP`
// and defaulting an ungrouped FINAL to DIRECT.
func buildClashRules(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "FINAL" {
			out = append(out, "MATCH,DIRECT")
			continue
		}
		if strings.HasPrefix(line, "FINAL,") {
			out = append(out, "MATCH,"+strings.TrimPrefix(line, "FINAL,"))
			continue
		}
		out = append(out, line)
	}
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
