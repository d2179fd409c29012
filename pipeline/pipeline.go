// Package pipeline implements C3: filtering, renaming, emoji-tagging,
// sorting, de-duplication, and stable ID assignment over the accumulated
// node list.
package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/subconverter-go/subconverter/node"
	"github.com/subconverter-go/subconverter/script"
)

// Scripter is the subset of the scripting engine the pipeline needs, kept
// as an interface so tests can stub it and so script support can be
// disabled entirely (SPEC_FULL.md §9 design note: "an implementation may
// disable scripting entirely and still pass S1-S6").
type Scripter interface {
	Rename(n *node.Node, body string) (string, error)
	GetEmoji(n *node.Node, body string) (string, error)
	Filter(nodes []*node.Node, body string) ([]int, error)
	Compare(a, b *node.Node, body string) (int, error)
}

// Run applies filter -> rename -> emoji -> sort -> dedup -> id-assignment,
// in that order, exactly per spec.md §4.C3.
func Run(nodes []*node.Node, settings node.ExtraSettings, sc Scripter, warn func(string)) []*node.Node {
	if warn == nil {
		warn = func(string) {}
	}
	nodes = filterNodes(nodes, settings.IncludeRemarks, settings.ExcludeRemarks, warn)
	renameNodes(nodes, settings.Rename, sc, warn)
	if settings.AddEmoji || settings.RemoveOldEmoji {
		applyEmoji(nodes, settings, sc, warn)
	}
	if settings.Sort {
		sortNodes(nodes, settings.SortScript, sc, warn)
	}
	dedupRemarks(nodes)
	assignIDs(nodes)
	return nodes
}

// filterNodes keeps a node iff it matches at least one include pattern (or
// the include list is empty) AND matches no exclude pattern.
func filterNodes(nodes []*node.Node, includes, excludes []string, warn func(string)) []*node.Node {
	includeRe := compileAll(includes, warn)
	excludeRe := compileAll(excludes, warn)

	out := nodes[:0:0]
	for _, n := range nodes {
		if len(includeRe) > 0 && !matchesAny(includeRe, n.Remark) {
			continue
		}
		if matchesAny(excludeRe, n.Remark) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func compileAll(patterns []string, warn func(string)) []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			warn(fmt.Sprintf("pipeline: invalid regex %q skipped: %v", p, err))
			continue
		}
		res = append(res, re)
	}
	return res
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// renameNodes applies ordered match@replace rules, gated by the
// !!GROUP=/!!GROUPID=/!!INSERT= prefix grammar, or delegates to a user
// script for !!script: rules.
func renameNodes(nodes []*node.Node, rules []node.RenameRule, sc Scripter, warn func(string)) {
	for _, n := range nodes {
		for _, rule := range rules {
			if !ruleApplies(n, rule.GroupMatch, rule.GroupIDExpr, warn) {
				continue
			}
			if rule.Script != "" {
				if sc == nil {
					warn("pipeline: rename script rule present but scripting disabled; node preserved")
					continue
				}
				result, err := sc.Rename(n, rule.Script)
				if err != nil {
					warn(fmt.Sprintf("pipeline: rename script failed for %q: %v", n.Remark, err))
					continue
				}
				n.Remark = result
				continue
			}
			re, err := regexp.Compile(rule.Match)
			if err != nil {
				warn(fmt.Sprintf("pipeline: invalid rename regex %q skipped: %v", rule.Match, err))
				continue
			}
			n.Remark = re.ReplaceAllString(n.Remark, rule.Replace)
		}
	}
}

// emojiLeadBytePrefix is the first byte of any 4-byte UTF-8 sequence
// encoding a codepoint above the BMP (U+10000+), which covers the emoji
// ranges Surge/Clash clients render (spec.md §4.C3 "Emoji").
const emojiLeadBytePrefix = 0xF0

func applyEmoji(nodes []*node.Node, settings node.ExtraSettings, sc Scripter, warn func(string)) {
	for _, n := range nodes {
		if settings.RemoveOldEmoji {
			n.Remark = stripLeadingEmoji(n.Remark)
		}
		if !settings.AddEmoji {
			continue
		}
		for _, rule := range settings.Emoji {
			if !ruleApplies(n, rule.GroupMatch, rule.GroupIDExpr, warn) {
				continue
			}
			if rule.Script != "" {
				if sc == nil {
					warn("pipeline: emoji script rule present but scripting disabled; node preserved")
					continue
				}
				emoji, err := sc.GetEmoji(n, rule.Script)
				if err != nil {
					warn(fmt.Sprintf("pipeline: emoji script failed for %q: %v", n.Remark, err))
					continue
				}
				if emoji != "" {
					n.Remark = emoji + " " + n.Remark
				}
				break
			}
			re, err := regexp.Compile(rule.Match)
			if err != nil {
				warn(fmt.Sprintf("pipeline: invalid emoji regex %q skipped: %v", rule.Match, err))
				continue
			}
			if re.MatchString(n.Remark) {
				n.Remark = rule.Emoji + " " + n.Remark
				break
			}
		}
	}
}

// stripLeadingEmoji removes one leading 4-byte UTF-8 sequence whose first
// byte is 0xF0 (\xF0\x9F prefix family), plus any immediately trailing
// space, per spec.md §4.C3.
func stripLeadingEmoji(s string) string {
	b := []byte(s)
	if len(b) >= 4 && b[0] == emojiLeadBytePrefix && b[1] == 0x9F {
		s = string(b[4:])
		s = strings.TrimPrefix(s, " ")
	}
	return s
}

// ruleApplies evaluates the !!GROUP=/!!GROUPID=/!!INSERT= gating prefixes.
// Absence of both gates means the rule applies unconditionally.
func ruleApplies(n *node.Node, groupMatch, groupIDExpr string, warn func(string)) bool {
	if groupMatch != "" {
		re, err := regexp.Compile(groupMatch)
		if err != nil {
			warn(fmt.Sprintf("pipeline: invalid !!GROUP= regex %q skipped: %v", groupMatch, err))
			return false
		}
		if !re.MatchString(n.GroupName) {
			return false
		}
	}
	if groupIDExpr != "" {
		r := node.ParseGroupIDRange(groupIDExpr)
		if !r.Match(n.GroupID) {
			return false
		}
	}
	return true
}

// sortNodes sorts stably by remark ascending, or by a user comparator
// script when one is supplied.
func sortNodes(nodes []*node.Node, scriptBody string, sc Scripter, warn func(string)) {
	if scriptBody != "" && sc != nil {
		sort.SliceStable(nodes, func(i, j int) bool {
			cmp, err := sc.Compare(nodes[i], nodes[j], scriptBody)
			if err != nil {
				warn(fmt.Sprintf("pipeline: sort script failed: %v", err))
				return false
			}
			return cmp < 0
		})
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Remark < nodes[j].Remark })
}

// dedupRemarks suffixes " 2", " 3", ... onto remarks that collide with one
// already used, preserving input order.
func dedupRemarks(nodes []*node.Node) {
	seen := map[string]int{}
	for _, n := range nodes {
		count := seen[n.Remark]
		seen[n.Remark] = count + 1
		if count > 0 {
			n.Remark = fmt.Sprintf("%s %d", n.Remark, count+1)
		}
	}
}

// assignIDs walks the final list in order, assigning dense ids starting at 0.
func assignIDs(nodes []*node.Node) {
	for i, n := range nodes {
		n.ID = i
	}
}

// DefaultScripter adapts the script package's VM pool into the Scripter
// interface pipeline.Run expects.
type DefaultScripter struct {
	Engine *script.Engine
}

func (d DefaultScripter) Rename(n *node.Node, body string) (string, error) {
	return d.Engine.Rename(n, body)
}
func (d DefaultScripter) GetEmoji(n *node.Node, body string) (string, error) {
	return d.Engine.GetEmoji(n, body)
}
func (d DefaultScripter) Filter(nodes []*node.Node, body string) ([]int, error) {
	return d.Engine.Filter(nodes, body)
}
func (d DefaultScripter) Compare(a, b *node.Node, body string) (int, error) {
	return d.Engine.Compare(a, b, body)
}
