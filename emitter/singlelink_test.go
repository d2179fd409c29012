package emitter

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestEmitSingleLinkSS(t *testing.T) {
	n := &node.Node{Kind: node.KindSS, Remark: "HK", Server: "h", Port: mkPort(1), Payload: map[string]any{"method": "aes-128-gcm", "password": "p"}}
	out, err := EmitSingleLink(Request{Nodes: []*node.Node{n}}, node.KindSS)
	if err != nil {
		t.Fatalf("EmitSingleLink: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(string(out))
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if !strings.HasPrefix(string(decoded), "ss://") {
		t.Fatalf("got %q", decoded)
	}
}

func TestEmitSingleLinkFiltersByKind(t *testing.T) {
	ss := &node.Node{Kind: node.KindSS, Remark: "HK", Server: "h", Port: mkPort(1), Payload: map[string]any{"method": "m", "password": "p"}}
	vm := &node.Node{Kind: node.KindVMess, Remark: "VM", Server: "h", Port: mkPort(1), Payload: map[string]any{"uuid": "u"}}
	out, err := EmitSingleLink(Request{Nodes: []*node.Node{ss, vm}}, node.KindVMess)
	if err != nil {
		t.Fatalf("EmitSingleLink: %v", err)
	}
	decoded, _ := base64.StdEncoding.DecodeString(string(out))
	if strings.Contains(string(decoded), "ss://") || !strings.Contains(string(decoded), "vmess://") {
		t.Fatalf("got %q", decoded)
	}
}
