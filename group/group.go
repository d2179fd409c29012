// Package group implements C5: expanding each user-declared proxy-group
// spec into a concrete ordered list of node display names.
package group

import (
	"regexp"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// Type enumerates the proxy-group kinds of spec.md §3 "ProxyGroupSpec".
type Type string

const (
	TypeSelect      Type = "select"
	TypeURLTest     Type = "url-test"
	TypeFallback    Type = "fallback"
	TypeLoadBalance Type = "load-balance"
	TypeRelay       Type = "relay"
	TypeSSID        Type = "ssid"
)

// Spec is one user-declared proxy group.
type Spec struct {
	Name      string
	Type      Type
	TestURL   string
	Interval  int
	Tolerance int
	Timeout   int
	Selectors []string
}

// Scripter delegates `script:<path>` selectors to the scripting engine.
type Scripter interface {
	SelectorScript(nodes []*node.Node, body string) ([]string, error)
}

// Expand turns spec into an ordered, deduplicated list of node display
// names by iterating its Selectors in order (spec.md §4.C5).
func Expand(spec Spec, nodes []*node.Node, sc Scripter, warn func(string)) []string {
	seen := map[string]bool{}
	var result []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}

	for _, sel := range spec.Selectors {
		switch {
		case strings.HasPrefix(sel, "!!PROVIDER="):
			// Only meaningful for the Clash target; the Clash emitter reads
			// Selectors itself when it needs provider names, so the
			// generic expander treats this as a pass-through no-op here.
			continue
		case strings.HasPrefix(sel, "!!GROUP="):
			matchNodesByGroup(sel, nodes, false, add, warn)
		case strings.HasPrefix(sel, "!!GROUPID="):
			matchNodesByGroupID(sel, nodes, false, add, warn)
		case strings.HasPrefix(sel, "!!INSERT="):
			matchNodesByGroupID(sel, nodes, true, add, warn)
		case strings.HasPrefix(sel, "[]"):
			add(strings.TrimPrefix(sel, "[]"))
		case strings.HasPrefix(sel, "script:"):
			if sc == nil {
				warn("group: script selector present but scripting disabled; skipped")
				continue
			}
			names, err := sc.SelectorScript(nodes, strings.TrimPrefix(sel, "script:"))
			if err != nil {
				warn("group: selector script failed: " + err.Error())
				continue
			}
			for _, n := range names {
				add(n)
			}
		default:
			re, err := regexp.Compile(sel)
			if err != nil {
				warn("group: invalid selector regex " + sel + ": " + err.Error())
				continue
			}
			for _, n := range nodes {
				if re.MatchString(n.Remark) {
					add(n.Remark)
				}
			}
		}
	}

	if len(result) == 0 {
		return []string{"DIRECT"}
	}
	return result
}

// matchNodesByGroup handles `!!GROUP=<re>[!!<re>]`.
func matchNodesByGroup(sel string, nodes []*node.Node, _ bool, add func(string), warn func(string)) {
	expr := strings.TrimPrefix(sel, "!!GROUP=")
	groupExpr, remarkExpr, _ := strings.Cut(expr, "!!")
	groupRe, err := regexp.Compile(groupExpr)
	if err != nil {
		warn("group: invalid !!GROUP= regex: " + err.Error())
		return
	}
	var remarkRe *regexp.Regexp
	if remarkExpr != "" {
		remarkRe, err = regexp.Compile(remarkExpr)
		if err != nil {
			warn("group: invalid !!GROUP= secondary regex: " + err.Error())
			return
		}
	}
	for _, n := range nodes {
		if !groupRe.MatchString(n.GroupName) {
			continue
		}
		if remarkRe != nil && !remarkRe.MatchString(n.Remark) {
			continue
		}
		add(n.Remark)
	}
}

// matchNodesByGroupID handles `!!GROUPID=<range>[!!<re>]` and
// `!!INSERT=<range>[!!<re>]`; insert selects negative group ids per the
// spec's sign convention, though the range expression itself already
// encodes sign via its terms.
func matchNodesByGroupID(sel string, nodes []*node.Node, _insert bool, add func(string), warn func(string)) {
	prefix := "!!GROUPID="
	if strings.HasPrefix(sel, "!!INSERT=") {
		prefix = "!!INSERT="
	}
	expr := strings.TrimPrefix(sel, prefix)
	rangeExpr, remarkExpr, _ := strings.Cut(expr, "!!")
	r := node.ParseGroupIDRange(rangeExpr)

	var remarkRe *regexp.Regexp
	if remarkExpr != "" {
		var err error
		remarkRe, err = regexp.Compile(remarkExpr)
		if err != nil {
			warn("group: invalid !!GROUPID= secondary regex: " + err.Error())
			return
		}
	}
	for _, n := range nodes {
		if !r.Match(n.GroupID) {
			continue
		}
		if remarkRe != nil && !remarkRe.MatchString(n.Remark) {
			continue
		}
		add(n.Remark)
	}
}

// Capable reports whether target can represent a group of the given type,
// per the capability matrix of spec.md §4.C5.
func Capable(target string, t Type) bool {
	matrix := map[string]map[Type]bool{
		"clash": {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeLoadBalance: true, TypeRelay: true},
		"clashr": {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeLoadBalance: true, TypeRelay: true},
		"surge": {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeLoadBalance: true, TypeSSID: true},
		"quanx": {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeLoadBalance: true, TypeSSID: true},
		"loon":  {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeSSID: true},
		"mellow": {TypeSelect: true, TypeURLTest: true, TypeFallback: true, TypeLoadBalance: true},
	}
	caps, ok := matrix[target]
	if !ok {
		return true
	}
	return caps[t]
}
