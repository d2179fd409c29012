package group

import (
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestExpandRegexSelector(t *testing.T) {
	nodes := []*node.Node{{Remark: "HK-01"}, {Remark: "US-01"}, {Remark: "HK-02"}}
	got := Expand(Spec{Selectors: []string{"^HK"}}, nodes, nil, func(string) {})
	if len(got) != 2 || got[0] != "HK-01" || got[1] != "HK-02" {
		t.Fatalf("got %v", got)
	}
}

func TestExpandLiteralSelector(t *testing.T) {
	nodes := []*node.Node{{Remark: "HK-01"}}
	got := Expand(Spec{Selectors: []string{"[]DIRECT"}}, nodes, nil, func(string) {})
	if len(got) != 1 || got[0] != "DIRECT" {
		t.Fatalf("got %v", got)
	}
}

func TestExpandEmptyFallsBackToDirect(t *testing.T) {
	// Group fallback: empty selector-match set -> exactly one member DIRECT.
	nodes := []*node.Node{{Remark: "HK-01"}}
	got := Expand(Spec{Selectors: []string{"^ZZ-nomatch"}}, nodes, nil, func(string) {})
	if len(got) != 1 || got[0] != "DIRECT" {
		t.Fatalf("got %v, want [DIRECT]", got)
	}
}

func TestExpandGroupIDRange(t *testing.T) {
	nodes := []*node.Node{
		{Remark: "A", GroupID: 1},
		{Remark: "B", GroupID: 4},
		{Remark: "C", GroupID: 5},
	}
	got := Expand(Spec{Selectors: []string{"!!GROUPID=1-3,5+"}}, nodes, nil, func(string) {})
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("got %v", got)
	}
}

func TestExpandFirstWinsDedup(t *testing.T) {
	nodes := []*node.Node{{Remark: "A"}, {Remark: "B"}}
	got := Expand(Spec{Selectors: []string{"A", "A|B"}}, nodes, nil, func(string) {})
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("got %v", got)
	}
}

func TestCapabilityMatrix(t *testing.T) {
	if !Capable("surge", TypeLoadBalance) {
		t.Fatalf("surge should support load-balance")
	}
	if Capable("mellow", TypeRelay) {
		t.Fatalf("mellow should not support relay")
	}
	if Capable("loon", TypeLoadBalance) {
		t.Fatalf("loon should not support load-balance")
	}
}
