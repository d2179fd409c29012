// Package template implements C7: a Jinja-like renderer used to expand
// base-template bodies (fetched via C1) before an emitter's own
// Proxy/Proxy-Group/Rule substitution runs (spec.md §4.C7).
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Engine renders template bodies against a sandboxed include root.
type Engine struct {
	// IncludeRoot is the directory `include "path"` statements are resolved
	// under. Empty disables includes entirely.
	IncludeRoot string
}

// New builds an Engine sandboxed to root for file includes.
func New(root string) *Engine {
	return &Engine{IncludeRoot: root}
}

// Render parses and evaluates src against scopes.
func (e *Engine) Render(src string, scopes *Scopes) (string, error) {
	toks := lex(src)
	nodes, err := parse(toks)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := e.renderNodes(nodes, scopes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Engine) renderNodes(nodes []node, scopes *Scopes, b *strings.Builder) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case textNode:
			b.WriteString(t.text)
		case exprNode:
			b.WriteString(evalExpr(t.expr, scopes))
		case setNode:
			scopes.Bind(t.name, resolveValue(t.expr, scopes))
		case ifNode:
			if evalCond(t.cond, scopes) {
				if err := e.renderNodes(t.then, scopes, b); err != nil {
					return err
				}
			} else {
				if err := e.renderNodes(t.els, scopes, b); err != nil {
					return err
				}
			}
		case forNode:
			for _, item := range iterate(t.seqExpr, scopes) {
				scopes.Bind(t.varName, item)
				if err := e.renderNodes(t.body, scopes, b); err != nil {
					return err
				}
			}
		case includeNode:
			body, err := e.loadInclude(t.path)
			if err != nil {
				return err
			}
			sub, err := e.Render(body, scopes)
			if err != nil {
				return err
			}
			b.WriteString(sub)
		default:
			return fmt.Errorf("template: unknown node type %T", n)
		}
	}
	return nil
}

// loadInclude resolves path under IncludeRoot, rejecting absolute paths and
// any path that escapes the root via ".." (spec.md §4.C7 "sandboxed").
func (e *Engine) loadInclude(path string) (string, error) {
	if e.IncludeRoot == "" {
		return "", fmt.Errorf("template: include disabled, no sandbox root configured")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("template: include path %q must be relative", path)
	}
	joined := filepath.Join(e.IncludeRoot, path)
	rel, err := filepath.Rel(e.IncludeRoot, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("template: include path %q escapes sandbox root", path)
	}
	data, err := os.ReadFile(joined)
	if err != nil {
		return "", fmt.Errorf("template: include %q: %w", path, err)
	}
	return string(data), nil
}
