package template

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// builtins are the callables exposed to every template (spec.md §4.C7
// "Built-in callables include UrlDecode, trim, trim_of").
var builtins = map[string]func(args []string) string{
	"UrlDecode": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		decoded, err := url.QueryUnescape(args[0])
		if err != nil {
			return args[0]
		}
		return decoded
	},
	"trim": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return strings.TrimSpace(args[0])
	},
	"trim_of": func(args []string) string {
		if len(args) < 2 {
			return ""
		}
		return strings.Trim(args[0], args[1])
	},
}

// evalExpr evaluates a template expression against scopes, returning its
// string rendering. Supports: quoted literals, numbers, dotted variable
// paths, and single-level function calls `Name(arg1, arg2)` where each arg
// is itself a literal or variable path.
func evalExpr(expr string, scopes *Scopes) string {
	expr = strings.TrimSpace(expr)
	if v, ok := tryCall(expr, scopes); ok {
		return v
	}
	return toStr(resolveValue(expr, scopes))
}

func tryCall(expr string, scopes *Scopes) (string, bool) {
	open := strings.Index(expr, "(")
	if open == -1 || !strings.HasSuffix(expr, ")") {
		return "", false
	}
	name := strings.TrimSpace(expr[:open])
	fn, ok := builtins[name]
	if !ok {
		return "", false
	}
	argsStr := expr[open+1 : len(expr)-1]
	var args []string
	if strings.TrimSpace(argsStr) != "" {
		for _, a := range strings.Split(argsStr, ",") {
			args = append(args, toStr(resolveValue(strings.TrimSpace(a), scopes)))
		}
	}
	return fn(args), true
}

// resolveValue resolves a single atom: a quoted string, a number, or a
// dotted variable path.
func resolveValue(atom string, scopes *Scopes) any {
	atom = strings.TrimSpace(atom)
	if len(atom) >= 2 && (atom[0] == '"' || atom[0] == '\'') && atom[len(atom)-1] == atom[0] {
		return atom[1 : len(atom)-1]
	}
	if n, err := strconv.ParseFloat(atom, 64); err == nil {
		return n
	}
	if atom == "true" {
		return true
	}
	if atom == "false" {
		return false
	}
	v, ok := scopes.Resolve(atom)
	if !ok {
		return ""
	}
	return v
}

func toStr(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// evalCond evaluates an `if`/`for`-guard style boolean condition. Supports
// `a == b`, `a != b`, `not x`, and bare truthiness.
func evalCond(cond string, scopes *Scopes) bool {
	cond = strings.TrimSpace(cond)
	if strings.HasPrefix(cond, "not ") {
		return !evalCond(strings.TrimPrefix(cond, "not "), scopes)
	}
	if lhs, rhs, ok := cutAny(cond, "=="); ok {
		return resolveValue(lhs, scopes) == resolveValue(rhs, scopes) ||
			toStr(resolveValue(lhs, scopes)) == toStr(resolveValue(rhs, scopes))
	}
	if lhs, rhs, ok := cutAny(cond, "!="); ok {
		return toStr(resolveValue(lhs, scopes)) != toStr(resolveValue(rhs, scopes))
	}
	v := resolveValue(cond, scopes)
	return truthy(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

// iterate resolves seqExpr into a slice for `for` loops. Accepts []string,
// []any, or a single scalar (treated as a one-element sequence).
func iterate(seqExpr string, scopes *Scopes) []any {
	v := resolveValue(seqExpr, scopes)
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{t}
	}
}
