package ruleset

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/subconverter-go/subconverter/fetcher"
	"github.com/subconverter-go/subconverter/logger"
)

func TestResolveOrderingRegardlessOfCompletionOrder(t *testing.T) {
	// S6-style setup: three sources, the slowest first, must still come
	// back in declaration order (property 9).
	delays := []time.Duration{30 * time.Millisecond, 0, 10 * time.Millisecond}
	var srvs []*httptest.Server
	for i, d := range delays {
		i, d := i, d
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(d)
			w.Write([]byte("DOMAIN,source" + strconv.Itoa(i) + ".com"))
		}))
		srvs = append(srvs, srv)
		defer srv.Close()
	}

	var refs []Ref
	for i, srv := range srvs {
		refs = append(refs, Ref{Group: "g", Path: srv.URL, Type: "surge"})
		_ = i
	}

	f, err := fetcher.New("NONE", 5*time.Second, t.TempDir(), "subconverter-test/1.0", logger.New(logger.LevelError))
	if err != nil {
		t.Fatalf("fetcher.New: %v", err)
	}

	resolved := Resolve(refs, f, "", 0, true, func(string) {})
	lines := Join(resolved, 0)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		want := "source" + strconv.Itoa(i) + ".com"
		if !strings.Contains(line, want) {
			t.Fatalf("line %d = %q, want to contain %q (declaration order must survive async completion order)", i, line, want)
		}
	}
}

func TestJoinEnforcesCombinedCap(t *testing.T) {
	// S6: three rulesets of many lines each, cap=1500 total, all drawn from
	// the first ruleset in order.
	mkLines := func(n int, prefix string) []string {
		lines := make([]string, n)
		for i := range lines {
			lines[i] = "DOMAIN," + prefix + strconv.Itoa(i) + ".com"
		}
		return lines
	}

	r1 := &Resolved{Group: "g", done: make(chan struct{})}
	r1.complete(mkLines(1000, "a"), nil)
	r2 := &Resolved{Group: "g", done: make(chan struct{})}
	r2.complete(mkLines(1000, "b"), nil)

	lines := Join([]*Resolved{r1, r2}, 1500)
	if len(lines) != 1500 {
		t.Fatalf("got %d lines, want 1500", len(lines))
	}
	for i := 0; i < 1000; i++ {
		if !strings.Contains(lines[i], "a"+strconv.Itoa(i)+".com") {
			t.Fatalf("line %d = %q, expected to be drawn from first ruleset", i, lines[i])
		}
	}
}

func TestInlineRuleNoFetch(t *testing.T) {
	refs := []Ref{{Group: "g", Path: "[]DOMAIN,example.com"}}
	resolved := Resolve(refs, nil, "", 0, false, func(string) {})
	lines, err := resolved[0].Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(lines) != 1 || lines[0] != "DOMAIN,example.com" {
		t.Fatalf("got %v", lines)
	}
}
