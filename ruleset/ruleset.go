// Package ruleset implements C4: resolving RulesetRef declarations into
// uniform Surge-flavoured rule lines, optionally fetching them concurrently
// while preserving declaration order.
package ruleset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/subconverter-go/subconverter/fetcher"
)

// Ref is a user-declared rule source (spec.md §3 "RulesetRef").
type Ref struct {
	Group string
	Path  string
	// Type is a hint {surge, quanx, clash-classical, clash-domain,
	// clash-ipcidr}; auto-detected when empty.
	Type string
}

// IsInline reports whether Path carries an inline rule body (`[]<literal>`)
// rather than a URL/path to fetch.
func (r Ref) IsInline() bool { return strings.HasPrefix(r.Path, "[]") }

// InlineBody returns the rule text following the `[]` marker.
func (r Ref) InlineBody() string { return strings.TrimPrefix(r.Path, "[]") }

// Resolved is a Ref after fetch/normalisation (spec.md §3 "ResolvedRuleset").
// Content is accessed via Wait, which blocks until the deferred value is
// available — a hand-rolled future analogous to the teacher's
// version-guarded shared state (SPEC_FULL.md §6 "C4").
type Resolved struct {
	Group string
	Path  string

	done    chan struct{}
	lines   []string
	fetchErr error
}

// Wait blocks until the ruleset's content is available and returns it. Safe
// to call from multiple goroutines; the result is immutable once resolved.
func (r *Resolved) Wait() ([]string, error) {
	<-r.done
	return r.lines, r.fetchErr
}

func newResolved(group, path string) *Resolved {
	return &Resolved{Group: group, Path: path, done: make(chan struct{})}
}

func (r *Resolved) complete(lines []string, err error) {
	r.lines, r.fetchErr = lines, err
	close(r.done)
}

// Resolve fetches/normalises every Ref, preserving declaration order in the
// returned slice regardless of completion order (spec.md §8 property 9).
// When async is true, non-inline refs are fetched concurrently and joined;
// otherwise refs are resolved sequentially.
func Resolve(refs []Ref, f *fetcher.Fetcher, proxy string, ttl int, async bool, warn func(string)) []*Resolved {
	out := make([]*Resolved, len(refs))
	for i, ref := range refs {
		out[i] = newResolved(ref.Group, ref.Path)
	}

	resolveOne := func(i int, ref Ref) {
		if ref.IsInline() {
			out[i].complete(normalizeLines([]string{ref.InlineBody()}, ref.Type), nil)
			return
		}
		if ref.Path == "[]FINAL" {
			out[i].complete([]string{"FINAL"}, nil)
			return
		}
		body, _, err := f.Fetch(ref.Path, proxy, ttl, false)
		if err != nil {
			warn(fmt.Sprintf("ruleset: fetch %q dropped: %v", ref.Path, err))
			out[i].complete(nil, err)
			return
		}
		lines := strings.Split(string(body), "\n")
		out[i].complete(normalizeLines(lines, ref.Type), nil)
	}

	if async {
		var wg sync.WaitGroup
		for i, ref := range refs {
			i, ref := i, ref
			if ref.IsInline() || ref.Path == "[]FINAL" {
				resolveOne(i, ref)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				resolveOne(i, ref)
			}()
		}
		wg.Wait()
	} else {
		for i, ref := range refs {
			resolveOne(i, ref)
		}
	}

	return out
}

// Join concatenates every Resolved ruleset's lines in declaration order,
// attaching each ruleset's group as the line's target (a ruleset is "an
// ordered list of routing rules associated with a single proxy group",
// spec.md glossary), and applying the cap last so it reflects the combined
// total across all rulesets, not per-ruleset (spec.md §4.C4, testable
// property 4).
func Join(resolved []*Resolved, maxAllowedRules int) []string {
	var all []string
	for _, r := range resolved {
		lines, err := r.Wait()
		if err != nil {
			continue
		}
		for _, line := range lines {
			all = append(all, attachGroup(line, r.Group))
		}
	}
	if maxAllowedRules > 0 && len(all) > maxAllowedRules {
		all = all[:maxAllowedRules]
	}
	return all
}

// attachGroup inserts group as the penultimate field of a Surge-flavoured
// rule line, keeping a trailing "no-resolve" last (testable property 10).
// "FINAL" carries no group of its own; emitters render it as MATCH against
// whichever group the FINAL ruleset declared.
func attachGroup(line, grp string) string {
	if line == "FINAL" {
		if grp == "" {
			return "FINAL"
		}
		return "FINAL," + grp
	}
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return line
	}
	if fields[len(fields)-1] == "no-resolve" {
		head := fields[:len(fields)-1]
		head = append(head, grp, "no-resolve")
		return strings.Join(head, ",")
	}
	return line + "," + grp
}

// normalizeLines converts one ruleset body's lines into uniform
// Surge-flavoured `TYPE,VALUE[,options]` lines, sniffing the source format
// when typ is empty (spec.md §4.C4).
func normalizeLines(lines []string, typ string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "- "):
			// Clash classical: "- DOMAIN-SUFFIX,example.com"
			out = append(out, strings.TrimPrefix(line, "- "))
		case typ == "clash-domain":
			out = append(out, "DOMAIN-SUFFIX,"+line)
		case typ == "clash-ipcidr":
			out = append(out, "IP-CIDR,"+line)
		case strings.Contains(line, ","):
			// Already Surge-flavoured or Quantumult X; pass through as-is.
			out = append(out, line)
		default:
			// Bare domain list entries with no type hint default to
			// domain-suffix matching, the common case for plain lists.
			out = append(out, "DOMAIN-SUFFIX,"+line)
		}
	}
	return out
}
