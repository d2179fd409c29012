package fetcher

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subconverter-go/subconverter/logger"
)

func TestDecodeDataURIPlain(t *testing.T) {
	body, err := decodeDataURI("data:text/plain,hello%20world")
	if err != nil {
		t.Fatalf("decodeDataURI: %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
}

func TestDecodeDataURIBase64(t *testing.T) {
	body, err := decodeDataURI("data:text/plain;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("decodeDataURI: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("body = %q, want %q", body, "hello")
	}
}

func TestFetchHTTPCachesWithinTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := New("NONE", 5*time.Second, dir, "subconverter-test/1.0", logger.New(logger.LevelError))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		body, _, err := f.Fetch(srv.URL, "", 600, false)
		if err != nil {
			t.Fatalf("Fetch #%d: %v", i, err)
		}
		if string(body) != "payload" {
			t.Fatalf("body = %q", body)
		}
	}
	if calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (cache should have served the rest)", calls)
	}
}

func TestFetchServesStaleOnFailure(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("good"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := New("NONE", 5*time.Second, dir, "subconverter-test/1.0", logger.New(logger.LevelError))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, err := f.Fetch(srv.URL, "", 600, false); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	// Force the cache to look expired so the next Fetch re-hits upstream.
	old := time.Now().Add(-time.Hour)
	key := cacheKey(srv.URL)
	if err := os.Chtimes(filepath.Join(dir, key), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fail = true
	body, _, err := f.Fetch(srv.URL, "", 600, false)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if string(body) != "good" {
		t.Fatalf("body = %q, want stale %q", body, "good")
	}
}

func TestFetchRejectsLocalPathWhenScopeLimited(t *testing.T) {
	dir := t.TempDir()
	f, err := New("NONE", 5*time.Second, dir, "", logger.New(logger.LevelError))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := f.Fetch("/etc/hostname", "", 0, true); err == nil {
		t.Fatalf("expected scope-limit error, got nil")
	}
}
