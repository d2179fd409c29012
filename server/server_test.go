package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandleSubEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(oneSSLink)) //nolint:errcheck
	}))
	defer upstream.Close()

	s := newTestServer(t)
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	q := url.Values{}
	q.Set("target", "clash")
	q.Set("url", upstream.URL)
	q.Set("groups", "Proxy`select`.*")

	resp, err := http.Get(ts.URL + "/sub?" + q.Encode())
	if err != nil {
		t.Fatalf("GET /sub: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header = %q", got)
	}
}

func TestHandleSubMissingTarget(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sub?url=http://example.com")
	if err != nil {
		t.Fatalf("GET /sub: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoopGuardRejectsOwnUserAgent(t *testing.T) {
	s := newTestServer(t)
	cfg := s.cfg.Load()
	cfg.UserAgent = "loop-guard-test/1.0"
	s.cfg.Swap(cfg)

	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/sub?target=clash&url=http://example.com", nil)
	req.Header.Set("User-Agent", "loop-guard-test/1.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sub: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleGetRulesetSurgeBarelines(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DOMAIN-SUFFIX,example.com\nDOMAIN-SUFFIX,example.org\n")) //nolint:errcheck
	}))
	defer upstream.Close()

	s := newTestServer(t)
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	encURL := base64.StdEncoding.EncodeToString([]byte(upstream.URL))
	resp, err := http.Get(ts.URL + "/getruleset?type=1&url=" + url.QueryEscape(encURL))
	if err != nil {
		t.Fatalf("GET /getruleset: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	out := string(body[:n])
	if !strings.Contains(out, "DOMAIN-SUFFIX,example.com") {
		t.Fatalf("got %q", out)
	}
	if strings.Contains(out, ",,") {
		t.Fatalf("type=1 output should not carry a group suffix: %q", out)
	}
}
