package pipeline

import (
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func mkNode(remark string) *node.Node {
	return &node.Node{Kind: node.KindSS, Remark: remark, Server: "x"}
}

func TestFilterExcludeRegex(t *testing.T) {
	// S3: nodes "US-01", "HK-01", exclude=^HK -> only US-01.
	nodes := []*node.Node{mkNode("US-01"), mkNode("HK-01")}
	out := filterNodes(nodes, nil, []string{"^HK"}, func(string) {})
	if len(out) != 1 || out[0].Remark != "US-01" {
		t.Fatalf("got %+v", out)
	}
}

func TestFilterMonotonicity(t *testing.T) {
	nodes := []*node.Node{mkNode("A"), mkNode("B"), mkNode("C")}
	before := filterNodes(nodes, nil, nil, func(string) {})
	after := filterNodes(nodes, nil, []string{"^B"}, func(string) {})
	if len(after) > len(before) {
		t.Fatalf("adding an exclude regex increased output count: %d -> %d", len(before), len(after))
	}
}

func TestEmojiPrepend(t *testing.T) {
	// S4: rule (?i)japan,🇯🇵 applied to "Japan Tokyo 01" -> "🇯🇵 Japan Tokyo 01".
	nodes := []*node.Node{mkNode("Japan Tokyo 01")}
	settings := node.ExtraSettings{
		AddEmoji: true,
		Emoji:    []node.EmojiRule{{Match: "(?i)japan", Emoji: "🇯🇵"}},
	}
	applyEmoji(nodes, settings, nil, func(string) {})
	if nodes[0].Remark != "🇯🇵 Japan Tokyo 01" {
		t.Fatalf("remark = %q", nodes[0].Remark)
	}
}

func TestStripLeadingEmoji(t *testing.T) {
	got := stripLeadingEmoji("🇯🇵 Japan Tokyo 01")
	if got != "Japan Tokyo 01" {
		t.Fatalf("got %q", got)
	}
}

func TestSortStability(t *testing.T) {
	nodes := []*node.Node{mkNode("A"), mkNode("A"), mkNode("A")}
	nodes[0].ID, nodes[1].ID, nodes[2].ID = 0, 1, 2
	sortNodes(nodes, "", nil, func(string) {})
	if nodes[0].ID != 0 || nodes[1].ID != 1 || nodes[2].ID != 2 {
		t.Fatalf("equal-key order not preserved: %d %d %d", nodes[0].ID, nodes[1].ID, nodes[2].ID)
	}
}

func TestDedupRemarks(t *testing.T) {
	// Dedup correctness: all remarks pairwise distinct after the pass.
	nodes := []*node.Node{mkNode("X"), mkNode("X"), mkNode("X")}
	dedupRemarks(nodes)
	seen := map[string]bool{}
	for _, n := range nodes {
		if seen[n.Remark] {
			t.Fatalf("duplicate remark %q survived dedup", n.Remark)
		}
		seen[n.Remark] = true
	}
	if nodes[0].Remark != "X" || nodes[1].Remark != "X 2" || nodes[2].Remark != "X 3" {
		t.Fatalf("got %q %q %q", nodes[0].Remark, nodes[1].Remark, nodes[2].Remark)
	}
}

func TestAssignIDsDense(t *testing.T) {
	nodes := []*node.Node{mkNode("A"), mkNode("B"), mkNode("C")}
	assignIDs(nodes)
	for i, n := range nodes {
		if n.ID != i {
			t.Fatalf("node %d has ID %d", i, n.ID)
		}
	}
}

// fakeScripter implements Scripter with canned behavior so tests can
// exercise script-gated pipeline branches without an embedded JS VM.
type fakeScripter struct {
	emoji string
	err   error
}

func (f fakeScripter) Rename(n *node.Node, body string) (string, error) { return n.Remark, nil }
func (f fakeScripter) GetEmoji(n *node.Node, body string) (string, error) {
	return f.emoji, f.err
}
func (f fakeScripter) Filter(nodes []*node.Node, body string) ([]int, error) { return nil, nil }
func (f fakeScripter) Compare(a, b *node.Node, body string) (int, error)    { return 0, nil }

func TestEmojiScriptRule(t *testing.T) {
	nodes := []*node.Node{mkNode("Tokyo 01")}
	settings := node.ExtraSettings{
		AddEmoji: true,
		Emoji:    []node.EmojiRule{{Script: "getEmoji(node)"}},
	}
	applyEmoji(nodes, settings, fakeScripter{emoji: "🇯🇵"}, func(string) {})
	if nodes[0].Remark != "🇯🇵 Tokyo 01" {
		t.Fatalf("remark = %q", nodes[0].Remark)
	}
}

func TestEmojiScriptRuleDisabledScripterPreservesNode(t *testing.T) {
	nodes := []*node.Node{mkNode("Tokyo 01")}
	settings := node.ExtraSettings{
		AddEmoji: true,
		Emoji:    []node.EmojiRule{{Script: "getEmoji(node)"}},
	}
	applyEmoji(nodes, settings, nil, func(string) {})
	if nodes[0].Remark != "Tokyo 01" {
		t.Fatalf("remark = %q, want unchanged when scripting disabled", nodes[0].Remark)
	}
}

func TestRenameGatedByGroupID(t *testing.T) {
	n1 := mkNode("A")
	n1.GroupID = 1
	n2 := mkNode("A")
	n2.GroupID = 5
	rules := []node.RenameRule{{Match: "A", Replace: "Renamed", GroupIDExpr: "1-3"}}
	renameNodes([]*node.Node{n1, n2}, rules, nil, func(string) {})
	if n1.Remark != "Renamed" {
		t.Fatalf("n1.Remark = %q, want renamed (group id 1 in range 1-3)", n1.Remark)
	}
	if n2.Remark != "A" {
		t.Fatalf("n2.Remark = %q, want unchanged (group id 5 not in range 1-3)", n2.Remark)
	}
}
