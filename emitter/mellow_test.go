package emitter

import (
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestEmitMellowVMessCompoundURI(t *testing.T) {
	n := &node.Node{Kind: node.KindVMess, Remark: "HK", Server: "h", Port: mkPort(443), Payload: map[string]any{"uuid": "u"}}
	out, err := EmitMellow(Request{Nodes: []*node.Node{n}})
	if err != nil {
		t.Fatalf("EmitMellow: %v", err)
	}
	if !strings.Contains(string(out), "vmess1://") {
		t.Fatalf("got:\n%s", out)
	}
}
