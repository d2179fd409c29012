package script

import (
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestRenameBareExpression(t *testing.T) {
	e := New()
	n := &node.Node{Remark: "Old Name", GroupName: "g"}
	got, err := e.Rename(n, `node.remark.toUpperCase()`)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got != "OLD NAME" {
		t.Fatalf("got %q", got)
	}
}

func TestRenameFunctionDecl(t *testing.T) {
	e := New()
	n := &node.Node{Remark: "x"}
	got, err := e.Rename(n, `function rename(node) { return "renamed:" + node.remark; }`)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got != "renamed:x" {
		t.Fatalf("got %q", got)
	}
}

func TestCompare(t *testing.T) {
	e := New()
	a := &node.Node{Remark: "b"}
	b := &node.Node{Remark: "a"}
	got, err := e.Compare(a, b, `a.remark < b.remark ? 1 : -1`)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got <= 0 {
		t.Fatalf("got %d, want > 0 ('b' sorts after 'a')", got)
	}
}

func TestFilterKeepsMatching(t *testing.T) {
	e := New()
	nodes := []*node.Node{{Remark: "keep-1"}, {Remark: "drop"}, {Remark: "keep-2"}}
	idx, err := e.Filter(nodes, `
var out = [];
for (var i = 0; i < nodes.length; i++) {
  if (nodes[i].remark.indexOf("keep") === 0) out.push(nodes[i].remark);
}
out.join("\n");
`)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 2 {
		t.Fatalf("got %v", idx)
	}
}
