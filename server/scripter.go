package server

import (
	"github.com/subconverter-go/subconverter/node"
	"github.com/subconverter-go/subconverter/script"
)

// groupScripter adapts script.Engine's node-index Filter into the
// remark-list shape group.Scripter expects for `script:` selectors
// (spec.md §4.C5).
type groupScripter struct {
	engine *script.Engine
}

func (g groupScripter) SelectorScript(nodes []*node.Node, body string) ([]string, error) {
	idx, err := g.engine.Filter(nodes, body)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = nodes[n].Remark
	}
	return out, nil
}
