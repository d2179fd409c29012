package emitter

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestEmitSSDEnvelope(t *testing.T) {
	n := &node.Node{Kind: node.KindSS, Remark: "HK", Server: "h", Port: mkPort(1), Payload: map[string]any{"method": "aes-128-gcm", "password": "p"}}
	out, err := EmitSSD(Request{Nodes: []*node.Node{n}, Traffic: &TrafficInfo{Upload: 1 << 30, Download: 0, Total: 10 << 30}})
	if err != nil {
		t.Fatalf("EmitSSD: %v", err)
	}
	if !strings.HasPrefix(string(out), "ssd://") {
		t.Fatalf("got:\n%s", out)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(string(out), "ssd://"))
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	var env ssdEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(env.Servers) != 1 || env.Servers[0].Server != "h" {
		t.Fatalf("got %+v", env)
	}
	if env.TrafficUsed != 1 || env.TrafficTotal != 10 {
		t.Fatalf("traffic figures not derived from header, got %+v", env)
	}
}

func TestEmitSSDSkipsNonShadowsocks(t *testing.T) {
	n := &node.Node{Kind: node.KindTrojan, Remark: "T", Payload: map[string]any{}}
	out, err := EmitSSD(Request{Nodes: []*node.Node{n}})
	if err != nil {
		t.Fatalf("EmitSSD: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(string(out), "ssd://"))
	var env ssdEnvelope
	json.Unmarshal(raw, &env)
	if len(env.Servers) != 0 {
		t.Fatalf("trojan node must be dropped by ssd emitter, got %+v", env.Servers)
	}
}
