package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderExpression(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	scopes.Global.Set("app.name", "subconverter")
	out, err := e.Render("hello {{ global.app.name }}", scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "hello subconverter" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderIfElse(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	scopes.Request.Set("target", "clash")
	out, err := e.Render(`{% if request.target == "clash" %}YAML{% else %}OTHER{% endif %}`, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "YAML" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderForLoop(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	scopes.Local.Set("names", []any{"a", "b", "c"})
	out, err := e.Render(`{% for n in local.names %}[{{ n }}]{% endfor %}`, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "[a][b][c]" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderLineStatement(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	scopes.Local.Set("flag", true)
	src := "before\n#~# if local.flag\nINSIDE\n#~# endif\nafter\n"
	out, err := e.Render(src, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "INSIDE") {
		t.Fatalf("got %q", out)
	}
}

func TestRenderBuiltinUrlDecode(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	scopes.Request.Set("q", "a%20b")
	out, err := e.Render(`{{ UrlDecode(request.q) }}`, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "a b" {
		t.Fatalf("got %q", out)
	}
}

func TestIncludeSandboxRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	scopes := NewScopes()
	_, err := e.Render(`{% include "../../etc/passwd" %}`, scopes)
	if err == nil {
		t.Fatalf("expected sandbox violation error")
	}
}

func TestIncludeWithinSandbox(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "partial.tpl"), []byte("PARTIAL"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e := New(dir)
	scopes := NewScopes()
	out, err := e.Render(`{% include "partial.tpl" %}`, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "PARTIAL" {
		t.Fatalf("got %q", out)
	}
}

func TestSetAndUseVariable(t *testing.T) {
	e := New("")
	scopes := NewScopes()
	out, err := e.Render(`{% set x = "hi" %}{{ x }}`, scopes)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "hi" {
		t.Fatalf("got %q", out)
	}
}
