package emitter

import (
	"encoding/json"

	"github.com/subconverter-go/subconverter/node"
)

type sip008Server struct {
	ID         string `json:"id"`
	Remarks    string `json:"remarks"`
	Server     string `json:"server"`
	ServerPort uint16 `json:"server_port"`
	Password   string `json:"password"`
	Method     string `json:"method"`
	Plugin     string `json:"plugin,omitempty"`
	PluginOpts string `json:"plugin_opts,omitempty"`
}

type sip008Doc struct {
	Version int            `json:"version"`
	Servers []sip008Server `json:"servers"`
}

// EmitSIP008 renders the SIP008 JSON-array Shadowsocks format
// (spec.md §4.C6 "common behaviours").
func EmitSIP008(req Request) ([]byte, error) {
	doc := sip008Doc{Version: 1}
	for _, n := range req.Nodes {
		if n.Kind != node.KindSS {
			continue
		}
		doc.Servers = append(doc.Servers, sip008Server{
			ID:         n.Remark,
			Remarks:    n.Remark,
			Server:     n.Server,
			ServerPort: n.PortOrZero(),
			Password:   n.PayloadString("password"),
			Method:     n.PayloadString("method"),
			Plugin:     n.PayloadString("plugin"),
			PluginOpts: n.PayloadString("plugin-opts"),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}
