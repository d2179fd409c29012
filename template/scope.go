package template

import "strings"

// Scope is a nested variable namespace. Dotted input keys are split into
// nested maps on assignment (`foo.bar=baz` -> global["foo"]["bar"] = "baz"),
// the same flattening discipline the teacher's payload validator used for
// JSON schema paths, run in reverse (SPEC_FULL.md §6 "C7").
type Scope map[string]any

// Set assigns a (possibly dotted) key within scope, creating intermediate
// nested maps as needed.
func (s Scope) Set(key string, value any) {
	parts := strings.Split(key, ".")
	cur := map[string]any(s)
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

// Get resolves a (possibly dotted) key, returning (nil, false) when any
// segment is absent.
func (s Scope) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = map[string]any(s)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Scopes bundles the three variable namespaces a render sees
// (spec.md §4.C7 "global.*, request.*, local.*").
type Scopes struct {
	Global  Scope
	Request Scope
	Local   Scope
}

// NewScopes builds an empty three-scope bundle.
func NewScopes() *Scopes {
	return &Scopes{Global: Scope{}, Request: Scope{}, Local: Scope{}}
}

// Resolve looks up name (e.g. "global.foo.bar") against the matching scope.
func (s *Scopes) Resolve(name string) (any, bool) {
	scope, rest, ok := strings.Cut(name, ".")
	switch scope {
	case "global":
		if !ok {
			return s.Global, true
		}
		return s.Global.Get(rest)
	case "request":
		if !ok {
			return s.Request, true
		}
		return s.Request.Get(rest)
	case "local":
		if !ok {
			return s.Local, true
		}
		return s.Local.Get(rest)
	default:
		// Unqualified names (e.g. loop variables bound by `for`) fall back
		// to the local scope.
		return s.Local.Get(name)
	}
}

// Bind assigns a variable into the local scope, used both by `set` and by
// the `for` loop's iteration variable.
func (s *Scopes) Bind(name string, value any) {
	s.Local.Set(name, value)
}
