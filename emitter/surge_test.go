package emitter

import (
	"strings"
	"testing"

	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
)

func mkPort(p uint16) *uint16 { return &p }

func TestEmitSurgeShadowsocks(t *testing.T) {
	n := &node.Node{
		Kind: node.KindSS, Remark: "HK-01", Server: "hk.example.com", Port: mkPort(443),
		Payload: map[string]any{"method": "aes-256-gcm", "password": "pass"},
	}
	out, err := EmitSurge(Request{Nodes: []*node.Node{n}}, 4, false)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "HK-01 = ss, hk.example.com, 443, encrypt-method=aes-256-gcm, password=pass") {
		t.Fatalf("got:\n%s", s)
	}
}

func TestEmitSurgeSSRExternalShimRotatesPorts(t *testing.T) {
	n1 := &node.Node{Kind: node.KindSSR, Remark: "R1", Server: "s1", Port: mkPort(1), Payload: map[string]any{}}
	n2 := &node.Node{Kind: node.KindSSR, Remark: "R2", Server: "s2", Port: mkPort(2), Payload: map[string]any{}}
	out, err := EmitSurge(Request{Nodes: []*node.Node{n1, n2}}, 3, false)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "local-port=1080") || !strings.Contains(s, "local-port=1081") {
		t.Fatalf("expected rotating loopback ports starting at 1080, got:\n%s", s)
	}
}

func TestEmitSurgeSSRNativeOnV4(t *testing.T) {
	n := &node.Node{Kind: node.KindSSR, Remark: "R1", Server: "s1", Port: mkPort(1), Payload: map[string]any{"method": "aes-128-cfb"}}
	out, err := EmitSurge(Request{Nodes: []*node.Node{n}}, 4, false)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	if !strings.Contains(string(out), "= ssr,") {
		t.Fatalf("expected native ssr= line on Surge 4, got:\n%s", out)
	}
}

func TestEmitSurgeRulesPassThroughGrouped(t *testing.T) {
	req := Request{
		Rules:  []string{"DOMAIN,example.com,Proxy", "DOMAIN-SUFFIX,a.com,Proxy,no-resolve"},
		Groups: []ExpandedGroup{{Spec: group.Spec{Name: "Proxy", Type: group.TypeSelect}, Members: []string{"HK-01"}}},
	}
	out, err := EmitSurge(req, 4, false)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "DOMAIN,example.com,Proxy") || !strings.Contains(s, "DOMAIN-SUFFIX,a.com,Proxy,no-resolve") {
		t.Fatalf("rules should pass through already-grouped, got:\n%s", s)
	}
}

func TestEmitSurfboardDropsBannedRuleTypes(t *testing.T) {
	req := Request{Rules: []string{"DOMAIN,a.com,Proxy", "USER-AGENT,foo,Proxy"}}
	out, err := EmitSurge(req, 3, true)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "USER-AGENT") {
		t.Fatalf("surfboard must drop USER-AGENT rules, got:\n%s", s)
	}
	if !strings.Contains(s, "DOMAIN,a.com,Proxy") {
		t.Fatalf("surfboard should keep allowed rules, got:\n%s", s)
	}
}

func TestEmitSurgeManagedConfigHeader(t *testing.T) {
	req := Request{ManagedConfigURL: "https://x/sub", Settings: node.ExtraSettings{Interval: 86400, Strict: true}}
	out, err := EmitSurge(req, 4, false)
	if err != nil {
		t.Fatalf("EmitSurge: %v", err)
	}
	if !strings.HasPrefix(string(out), "#!MANAGED-CONFIG https://x/sub interval=86400 strict=true") {
		t.Fatalf("got:\n%s", out)
	}
}
