package emitter

import (
	"encoding/json"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestEmitSIP008(t *testing.T) {
	n := &node.Node{Kind: node.KindSS, Remark: "HK", Server: "h", Port: mkPort(8388), Payload: map[string]any{"method": "aes-256-gcm", "password": "p"}}
	out, err := EmitSIP008(Request{Nodes: []*node.Node{n}})
	if err != nil {
		t.Fatalf("EmitSIP008: %v", err)
	}
	var doc sip008Doc
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].ServerPort != 8388 {
		t.Fatalf("got %+v", doc)
	}
}
