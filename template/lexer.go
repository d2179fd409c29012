package template

import "strings"

type tokenKind int

const (
	tokText tokenKind = iota
	tokExpr
	tokStmt
)

type rawToken struct {
	kind tokenKind
	body string // for tokExpr/tokStmt: the trimmed content between delimiters
}

// lex splits src into a flat sequence of text/expression/statement tokens.
// Besides the `{% %}`/`{{ }}` delimiters, a line beginning with `#~#` (after
// leading whitespace) is treated as a single statement spanning to the end
// of that line (spec.md §4.C7 "line-statement form `#~#`").
func lex(src string) []rawToken {
	var toks []rawToken
	lines := splitKeepNewline(src)
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#~#") {
			stmt := strings.TrimSuffix(strings.TrimPrefix(trimmed, "#~#"), "\n")
			toks = append(toks, rawToken{kind: tokStmt, body: strings.TrimSpace(stmt)})
			continue
		}
		toks = append(toks, lexDelimited(line)...)
	}
	return toks
}

func splitKeepNewline(src string) []string {
	var out []string
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			out = append(out, src[start:i+1])
			start = i + 1
		}
	}
	if start < len(src) {
		out = append(out, src[start:])
	}
	return out
}

func lexDelimited(s string) []rawToken {
	var toks []rawToken
	i := 0
	for i < len(s) {
		nextStmt := strings.Index(s[i:], "{%")
		nextExpr := strings.Index(s[i:], "{{")
		switch {
		case nextStmt == -1 && nextExpr == -1:
			toks = append(toks, rawToken{kind: tokText, body: s[i:]})
			i = len(s)
		case nextExpr == -1 || (nextStmt != -1 && nextStmt < nextExpr):
			if nextStmt > 0 {
				toks = append(toks, rawToken{kind: tokText, body: s[i : i+nextStmt]})
			}
			end := strings.Index(s[i+nextStmt:], "%}")
			if end == -1 {
				toks = append(toks, rawToken{kind: tokText, body: s[i+nextStmt:]})
				i = len(s)
				continue
			}
			body := s[i+nextStmt+2 : i+nextStmt+end]
			toks = append(toks, rawToken{kind: tokStmt, body: strings.TrimSpace(body)})
			i = i + nextStmt + end + 2
		default:
			if nextExpr > 0 {
				toks = append(toks, rawToken{kind: tokText, body: s[i : i+nextExpr]})
			}
			end := strings.Index(s[i+nextExpr:], "}}")
			if end == -1 {
				toks = append(toks, rawToken{kind: tokText, body: s[i+nextExpr:]})
				i = len(s)
				continue
			}
			body := s[i+nextExpr+2 : i+nextExpr+end]
			toks = append(toks, rawToken{kind: tokExpr, body: strings.TrimSpace(body)})
			i = i + nextExpr + end + 2
		}
	}
	return toks
}
