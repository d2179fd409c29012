package emitter

import (
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestEmitQuantumultXServer(t *testing.T) {
	n := &node.Node{
		Kind: node.KindVMess, Remark: "HK", Server: "h", Port: mkPort(443),
		Payload: map[string]any{"uuid": "u", "tls": true, "sni": "a.com"},
	}
	out, err := EmitQuantumultX(Request{Nodes: []*node.Node{n}})
	if err != nil {
		t.Fatalf("EmitQuantumultX: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "vmess=h:443") || !strings.Contains(s, "tls-host=a.com") {
		t.Fatalf("got:\n%s", s)
	}
}
