package parser

import (
	"encoding/base64"
	"testing"

	"github.com/subconverter-go/subconverter/node"
)

func TestParseSSSingleURI(t *testing.T) {
	// S1: ss://YWVzLTEyOC1nY206cGFzc0AxLjIuMy40OjgzODg#Node
	nodes, err := Parse("ss://YWVzLTEyOC1nY206cGFzc0AxLjIuMy40OjgzODg#Node", Hints{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	n := nodes[0]
	if n.Kind != node.KindSS {
		t.Errorf("Kind = %v, want SS", n.Kind)
	}
	if n.Remark != "Node" || n.Server != "1.2.3.4" || n.PortOrZero() != 8388 {
		t.Errorf("got remark=%q server=%q port=%d", n.Remark, n.Server, n.PortOrZero())
	}
	if n.PayloadString("method") != "aes-128-gcm" || n.PayloadString("password") != "pass" {
		t.Errorf("payload = %+v", n.Payload)
	}
}

func TestParseSSRDowncastToSS(t *testing.T) {
	// S2: SSR with protocol=origin, obfs=plain, method=aes-256-gcm must
	// downcast to SS.
	host, port, protocol, method, obfs := "example.com", "8080", "origin", "aes-256-gcm", "plain"
	b64pass := base64.RawURLEncoding.EncodeToString([]byte("pass"))
	raw := "ssr://" + rawB64(host+":"+port+":"+protocol+":"+method+":"+obfs+":"+b64pass)

	nodes, err := Parse(raw, Hints{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	if nodes[0].Kind != node.KindSS {
		t.Fatalf("Kind = %v, want SS (downcast)", nodes[0].Kind)
	}
}

func TestParseTextualSubscription(t *testing.T) {
	lines := "ss://YWVzLTEyOC1nY206cGFzc0AxLjIuMy40OjgzODg#A\nss://YWVzLTEyOC1nY206cGFzc0AxLjIuMy40OjgzODg#B"
	encoded := rawB64(lines)

	nodes, err := Parse(encoded, Hints{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
}

func TestParseTagPrefix(t *testing.T) {
	url, tag, script := ParseSourcePrefix("tag:MyGroup,https://example.com/sub")
	if url != "https://example.com/sub" || tag != "MyGroup" || script != "" {
		t.Errorf("got url=%q tag=%q script=%q", url, tag, script)
	}
}

func rawB64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
