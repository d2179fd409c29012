package emitter

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
)

// EmitMellow renders Mellow's INI dialect: `[Endpoint]` lines keyed by
// name = protocol-URI, and `[EndpointGroup]` lines listing member names.
// VMess nodes render as the compound `vmess1://` form Shadowrocket/Kitsunebi
// popularised, quirks preserved byte-for-byte per SPEC_FULL.md §7 (spec.md
// §4.C6 "common behaviours").
func EmitMellow(req Request) ([]byte, error) {
	var b strings.Builder
	b.WriteString("[Endpoint]\n")
	for _, n := range req.Nodes {
		uri := buildMellowEndpointURI(n)
		if uri == "" {
			continue
		}
		fmt.Fprintf(&b, "%s = %s\n", n.Remark, uri)
	}

	if !req.Settings.NodelistMode {
		b.WriteString("\n[EndpointGroup]\n")
		for _, g := range req.Groups {
			fmt.Fprintf(&b, "%s = %s, %s\n", g.Spec.Name, mellowGroupKind(g.Spec.Type), strings.Join(g.Members, ", "))
		}
	}
	return []byte(b.String()), nil
}

func mellowGroupKind(t group.Type) string {
	switch t {
	case group.TypeURLTest:
		return "speed"
	case group.TypeFallback:
		return "fallback"
	default:
		return "select"
	}
}

func buildMellowEndpointURI(n *node.Node) string {
	switch n.Kind {
	case node.KindSS:
		auth := base64.StdEncoding.EncodeToString([]byte(n.PayloadString("method") + ":" + n.PayloadString("password")))
		return fmt.Sprintf("ss://%s@%s:%d", auth, n.Server, n.PortOrZero())
	case node.KindVMess:
		compound := fmt.Sprintf("%s:%s:%s:%s:%s:%d:%s",
			n.PayloadString("uuid"), "auto", orDefault(n.PayloadString("network"), "tcp"),
			n.PayloadString("host"), n.Server, n.PortOrZero(), n.PayloadString("path"))
		return "vmess1://" + base64.RawURLEncoding.EncodeToString([]byte(compound))
	case node.KindTrojan:
		return fmt.Sprintf("trojan://%s@%s:%d", n.PayloadString("password"), n.Server, n.PortOrZero())
	case node.KindSocks5:
		return fmt.Sprintf("socks5://%s:%s@%s:%d",
			n.PayloadString("username"), n.PayloadString("password"), n.Server, n.PortOrZero())
	default:
		return ""
	}
}
