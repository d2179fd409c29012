package emitter

import (
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
)

func TestEmitQuantumultServer(t *testing.T) {
	n := &node.Node{Kind: node.KindSS, Remark: "HK", Server: "h", Port: mkPort(1), Payload: map[string]any{"method": "rc4-md5", "password": "p"}}
	out, err := EmitQuantumult(Request{Nodes: []*node.Node{n}})
	if err != nil {
		t.Fatalf("EmitQuantumult: %v", err)
	}
	if !strings.Contains(string(out), "shadowsocks=h:1") {
		t.Fatalf("got:\n%s", out)
	}
}

func TestEmitQuantumultPolicyIsBase64(t *testing.T) {
	g := ExpandedGroup{Spec: group.Spec{Name: "Proxy", Type: group.TypeSelect}, Members: []string{"HK"}}
	out, err := EmitQuantumult(Request{Groups: []ExpandedGroup{g}})
	if err != nil {
		t.Fatalf("EmitQuantumult: %v", err)
	}
	if !strings.Contains(string(out), "Proxy=") {
		t.Fatalf("got:\n%s", out)
	}
}
