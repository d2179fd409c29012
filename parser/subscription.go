package parser

import (
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// parseTextualSubscription is the final fallback dispatch branch
// (spec.md §4.C2 bullet 6): base64-decode the whole blob (URL-safe variant
// accepted), split on newlines, and parse each line as a single-node URI.
// A blob that fails to base64-decode is treated as already-plain text (some
// subscription servers skip the encoding step).
func parseTextualSubscription(trimmed string) ([]*node.Node, error) {
	text := trimmed
	if decoded, err := decodeB64(trimmed); err == nil {
		text = string(decoded)
	}

	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })

	var nodes []*node.Node
	for _, line := range lines {
		line = stripBOMAndCR(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		n, ok, err := tryParseSingleURI(line)
		if !ok || err != nil {
			// Malformed single line: dropped with a warning per spec.md
			// §4.C2 failure policy (the caller logs; here we just skip).
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
