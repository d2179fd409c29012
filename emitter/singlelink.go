package emitter

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// EmitSingleLink renders one-URI-per-line output for a single protocol
// kind, base64-encoded as a whole (grounded on orris-inc/orris's
// Base64Formatter: build a `scheme://...` URI per node, join with `\n`,
// base64 the joined blob — spec.md §4.C6 "common behaviours").
func EmitSingleLink(req Request, kind node.Kind) ([]byte, error) {
	var links []string
	for _, n := range req.Nodes {
		if n.Kind != kind {
			continue
		}
		link := buildSingleLinkURI(n)
		if link != "" {
			links = append(links, link)
		}
	}
	content := strings.Join(links, "\n")
	return []byte(base64.StdEncoding.EncodeToString([]byte(content))), nil
}

func buildSingleLinkURI(n *node.Node) string {
	switch n.Kind {
	case node.KindSS:
		auth := fmt.Sprintf("%s:%s", n.PayloadString("method"), n.PayloadString("password"))
		authEnc := base64.StdEncoding.EncodeToString([]byte(auth))
		link := fmt.Sprintf("ss://%s@%s:%d", authEnc, n.Server, n.PortOrZero())
		if plugin := n.PayloadString("plugin"); plugin != "" {
			link += "?plugin=" + url.QueryEscape(plugin+";"+n.PayloadString("plugin-opts"))
		}
		if n.Remark != "" {
			link += "#" + url.QueryEscape(n.Remark)
		}
		return link
	case node.KindSSR:
		body := fmt.Sprintf("%s:%d:%s:%s:%s:%s",
			n.Server, n.PortOrZero(), n.PayloadString("protocol"), n.PayloadString("method"),
			n.PayloadString("obfs"), base64.RawURLEncoding.EncodeToString([]byte(n.PayloadString("password"))))
		params := url.Values{}
		params.Set("obfsparam", base64.RawURLEncoding.EncodeToString([]byte(n.PayloadString("obfsparam"))))
		params.Set("protoparam", base64.RawURLEncoding.EncodeToString([]byte(n.PayloadString("protocolparam"))))
		params.Set("remarks", base64.RawURLEncoding.EncodeToString([]byte(n.Remark)))
		full := body + "/?" + params.Encode()
		return "ssr://" + base64.RawURLEncoding.EncodeToString([]byte(full))
	case node.KindVMess:
		doc := map[string]any{
			"v": "2", "ps": n.Remark, "add": n.Server, "port": fmt.Sprintf("%d", n.PortOrZero()),
			"id": n.PayloadString("uuid"), "aid": fmt.Sprintf("%d", n.PayloadInt("alterId")),
			"net": orDefault(n.PayloadString("network"), "tcp"), "type": "none",
			"host": n.PayloadString("host"), "path": n.PayloadString("path"),
			"tls": map[bool]string{true: "tls", false: ""}[n.PayloadBool("tls")],
		}
		body := vmessJSONCompact(doc)
		return "vmess://" + base64.StdEncoding.EncodeToString([]byte(body))
	case node.KindTrojan:
		link := fmt.Sprintf("trojan://%s@%s:%d", n.PayloadString("password"), n.Server, n.PortOrZero())
		if sni := n.PayloadString("sni"); sni != "" {
			link += "?sni=" + url.QueryEscape(sni)
		}
		if n.Remark != "" {
			link += "#" + url.QueryEscape(n.Remark)
		}
		return link
	default:
		return ""
	}
}

// vmessJSONCompact renders a v2rayN-style vmess JSON body deterministically
// without pulling in a generic marshaller keyed on map iteration order.
func vmessJSONCompact(doc map[string]any) string {
	order := []string{"v", "ps", "add", "port", "id", "aid", "net", "type", "host", "path", "tls"}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range order {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%q", k, fmt.Sprint(doc[k]))
	}
	b.WriteByte('}')
	return b.String()
}
