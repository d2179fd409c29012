// Package script provides the escape-hatch user-scripting engine
// (spec.md §9 "Escape-hatch scripting"): sandboxed JavaScript entry points
// function parse(x, ...), function rename(node), function getEmoji(node),
// function filter([nodes]), function compare(a, b).
//
// Adapted from the teacher's jschallenge solver: one otto VM per Engine,
// serialised by a mutex, since a single request's pipeline/group stages
// call into scripts sequentially rather than from many goroutines at once.
package script

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/subconverter-go/subconverter/node"
)

// Engine runs user-supplied JavaScript snippets against node.Node values.
// Scripts are expected to be side-effect-free except for their return
// value; a script failure never aborts the caller — the original
// node/remark is preserved and the caller logs a warning
// (spec.md §7 "script").
type Engine struct {
	vm *otto.Otto
	mu sync.Mutex
}

// New constructs an Engine with an empty VM. Each call to Rename/GetEmoji/
// Filter/Compare evaluates the caller-supplied body inside that VM.
func New() *Engine {
	return &Engine{vm: otto.New()}
}

// nodeToJS converts a node.Node into the plain-object shape scripts expect:
// {remark, server, port, groupName, groupId, kind, ...payload}.
func nodeToJS(n *node.Node) map[string]any {
	obj := map[string]any{
		"remark":    n.Remark,
		"server":    n.Server,
		"port":      n.PortOrZero(),
		"groupName": n.GroupName,
		"groupId":   n.GroupID,
		"kind":      string(n.Kind),
	}
	for k, v := range n.Payload {
		if _, exists := obj[k]; !exists {
			obj[k] = v
		}
	}
	return obj
}

func (e *Engine) setNodeGlobal(name string, n *node.Node) error {
	raw, err := json.Marshal(nodeToJS(n))
	if err != nil {
		return fmt.Errorf("script: marshal node: %w", err)
	}
	if _, err := e.vm.Run(fmt.Sprintf("var %s = %s;", name, raw)); err != nil {
		return fmt.Errorf("script: seed %s: %w", name, err)
	}
	return nil
}

// Rename runs `function rename(node)` (or a bare expression body) and
// returns the resulting string, used to replace a node's remark.
func (e *Engine) Rename(n *node.Node, body string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.setNodeGlobal("node", n); err != nil {
		return n.Remark, err
	}
	val, err := e.vm.Run(wrapEntry(body, "rename", "node"))
	if err != nil {
		return n.Remark, fmt.Errorf("script: rename: %w", err)
	}
	s, err := val.ToString()
	if err != nil {
		return n.Remark, fmt.Errorf("script: rename result: %w", err)
	}
	return s, nil
}

// GetEmoji runs `function getEmoji(node)` (or a bare expression body) and
// returns the emoji string to prepend to the node's remark, used by an
// emoji rule's `!!script:` form (node.EmojiRule.Script).
func (e *Engine) GetEmoji(n *node.Node, body string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.setNodeGlobal("node", n); err != nil {
		return "", err
	}
	val, err := e.vm.Run(wrapEntry(body, "getEmoji", "node"))
	if err != nil {
		return "", fmt.Errorf("script: getEmoji: %w", err)
	}
	return val.ToString()
}

// Filter runs `function filter([nodes])` and returns the indices of the
// nodes the script kept (determined by matching remarks in the returned
// newline-separated list against the input order).
func (e *Engine) Filter(nodes []*node.Node, body string) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		arr[i] = nodeToJS(n)
	}
	raw, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("script: marshal nodes: %w", err)
	}
	if _, err := e.vm.Run(fmt.Sprintf("var nodes = %s;", raw)); err != nil {
		return nil, fmt.Errorf("script: seed nodes: %w", err)
	}
	val, err := e.vm.Run(wrapEntry(body, "filter", "nodes"))
	if err != nil {
		return nil, fmt.Errorf("script: filter: %w", err)
	}
	s, err := val.ToString()
	if err != nil {
		return nil, fmt.Errorf("script: filter result: %w", err)
	}
	kept := map[string]bool{}
	for _, remark := range splitLines(s) {
		kept[remark] = true
	}
	var idx []int
	for i, n := range nodes {
		if kept[n.Remark] {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// Source runs `function parse(content, ...args)` over a raw fetched source
// body before it reaches the parser, implementing the `script:<path>,<arg>,
// ...` source-tagging prefix (spec.md §4.C2 "Tagging syntax"). The script's
// return value replaces the body handed to parser.Parse.
func (e *Engine) Source(content string, body string, args []string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rawContent, err := json.Marshal(content)
	if err != nil {
		return content, fmt.Errorf("script: marshal source content: %w", err)
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return content, fmt.Errorf("script: marshal source args: %w", err)
	}
	seed := fmt.Sprintf("var __content = %s; var __args = %s;", rawContent, rawArgs)
	if _, err := e.vm.Run(seed); err != nil {
		return content, fmt.Errorf("script: seed source args: %w", err)
	}
	val, err := e.vm.Run(wrapEntry(body, "parse", "__content, __args"))
	if err != nil {
		return content, fmt.Errorf("script: parse: %w", err)
	}
	s, err := val.ToString()
	if err != nil {
		return content, fmt.Errorf("script: parse result: %w", err)
	}
	return s, nil
}

// Compare runs `function compare(a, b)` and returns an int <0, 0, or >0.
func (e *Engine) Compare(a, b *node.Node, body string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rawA, _ := json.Marshal(nodeToJS(a))
	rawB, _ := json.Marshal(nodeToJS(b))
	if _, err := e.vm.Run(fmt.Sprintf("var a = %s; var b = %s;", rawA, rawB)); err != nil {
		return 0, fmt.Errorf("script: seed compare args: %w", err)
	}
	val, err := e.vm.Run(wrapEntry(body, "compare", "a, b"))
	if err != nil {
		return 0, fmt.Errorf("script: compare: %w", err)
	}
	n, err := val.ToInteger()
	if err != nil {
		return 0, fmt.Errorf("script: compare result: %w", err)
	}
	return int(n), nil
}

// wrapEntry decides whether body already declares the named entry function
// (in which case we just call it) or is a bare expression body (in which
// case we wrap it in a function declaration first).
func wrapEntry(body, fnName, args string) string {
	if containsFuncDecl(body, fnName) {
		return body + fmt.Sprintf("\n%s(%s);", fnName, args)
	}
	return fmt.Sprintf("(function(%s){ %s })(%s);", args, body, args)
}

func containsFuncDecl(body, fnName string) bool {
	needle := "function " + fnName
	return len(body) >= len(needle) && indexOf(body, needle) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, trimCR(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, trimCR(s[start:]))
	return out
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
