package fetcher

import (
	"crypto/md5" //nolint:gosec // content-addressed cache key, not a security boundary
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/subconverter-go/subconverter/logger"
	"github.com/subconverter-go/subconverter/metrics"
)

// Headers is the captured response header set exposed alongside a fetched
// body (used by SSD/managed-config emitters to read Subscription-UserInfo).
type Headers map[string][]string

// Get returns the first value of key, or "".
func (h Headers) Get(key string) string {
	if vs, ok := h[http.CanonicalHeaderKey(key)]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Fetcher retrieves bytes from http(s)://, data:, or local-path sources,
// honouring a TTL-based disk cache shared across all in-flight fetches.
//
// Concurrency discipline: cacheMu serialises every read/write to the cache
// directory across all fetches (spec.md §5 "shared state"), matching the
// single-mutex discipline the pipeline demands rather than the teacher's
// per-session-isolated client pool (a converter fetch is not tied to a
// long-lived session).
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	log       *logger.Logger

	cacheMu sync.Mutex
}

// New constructs a Fetcher. proxyArg and timeout configure the underlying
// HTTP client (see NewHTTPClient); cacheDir is created if absent.
func New(proxyArg string, timeout time.Duration, cacheDir, userAgent string, log *logger.Logger) (*Fetcher, error) {
	c, err := NewHTTPClient(proxyArg, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("fetcher: create cache dir %q: %w", cacheDir, err)
		}
	}
	return &Fetcher{client: c, cacheDir: cacheDir, userAgent: userAgent, log: log}, nil
}

// Fetch retrieves url's body and captured headers, honouring ttl (seconds;
// 0 disables caching). scopeLimit, when true, rejects local filesystem
// paths (spec.md §4.C1, §4.C8 authz).
func (f *Fetcher) Fetch(url_, proxy string, ttl int, scopeLimit bool) ([]byte, Headers, error) {
	switch {
	case strings.HasPrefix(url_, "data:"):
		body, err := decodeDataURI(url_)
		return body, nil, err
	case strings.HasPrefix(url_, "http://"), strings.HasPrefix(url_, "https://"):
		return f.fetchHTTP(url_, proxy, ttl)
	default:
		if scopeLimit {
			return nil, nil, fmt.Errorf("fetcher: local file access denied for %q (no access token)", url_)
		}
		return f.fetchFile(url_)
	}
}

func (f *Fetcher) fetchFile(path string) ([]byte, Headers, error) {
	clean := filepath.Clean(path)
	body, err := os.ReadFile(clean) // #nosec G304 -- scope_limit gates callers before reaching here
	if err != nil {
		return nil, nil, fmt.Errorf("fetcher: read local file %q: %w", path, err)
	}
	return body, nil, nil
}

func (f *Fetcher) fetchHTTP(target, proxyOverride string, ttl int) ([]byte, Headers, error) {
	key := cacheKey(target)

	if ttl > 0 && f.cacheDir != "" {
		if body, hdrs, ok := f.readCache(key, ttl); ok {
			metrics.ObserveCache(true)
			f.log.Debugf("fetcher: cache hit for %s", target)
			return body, hdrs, nil
		}
	}
	metrics.ObserveCache(false)

	body, hdrs, err := f.doFetch(target, proxyOverride)
	if err != nil {
		if ttl > 0 && f.cacheDir != "" {
			if staleBody, staleHdrs, ok := f.readCacheIgnoringTTL(key); ok {
				f.log.Errorf("fetcher: fetch %s failed (%v); serving stale cache", target, err)
				return staleBody, staleHdrs, nil
			}
		}
		return nil, nil, fmt.Errorf("fetcher: fetch %q: %w", target, err)
	}

	if ttl > 0 && f.cacheDir != "" {
		f.writeCache(key, body, hdrs)
	}
	return body, hdrs, nil
}

func (f *Fetcher) doFetch(target, proxyOverride string) ([]byte, Headers, error) {
	client := f.client
	if proxyOverride != "" {
		c, err := NewHTTPClient(proxyOverride, f.client.Timeout)
		if err == nil {
			client = c
		}
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	ua := f.userAgent
	if ua == "" {
		ua = "subconverter/0.1"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, nil, fmt.Errorf("empty body")
	}

	return body, Headers(resp.Header), nil
}

// decodeDataURI decodes an RFC 2397 data: URI (the subset the spec cares
// about: optional media type, optional ;base64).
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("fetcher: malformed data URI (no comma)")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("fetcher: decode base64 data URI: %w", err)
		}
		return decoded, nil
	}
	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("fetcher: unescape data URI: %w", err)
	}
	return []byte(decoded), nil
}

func cacheKey(target string) string {
	sum := md5.Sum([]byte(target)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func (f *Fetcher) bodyPath(key string) string   { return filepath.Join(f.cacheDir, key) }
func (f *Fetcher) headerPath(key string) string { return filepath.Join(f.cacheDir, key+"_header") }

func (f *Fetcher) readCache(key string, ttl int) ([]byte, Headers, bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()

	info, err := os.Stat(f.bodyPath(key))
	if err != nil {
		return nil, nil, false
	}
	if time.Since(info.ModTime()) > time.Duration(ttl)*time.Second {
		return nil, nil, false
	}
	return f.readCacheFilesLocked(key)
}

func (f *Fetcher) readCacheIgnoringTTL(key string) ([]byte, Headers, bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	return f.readCacheFilesLocked(key)
}

func (f *Fetcher) readCacheFilesLocked(key string) ([]byte, Headers, bool) {
	body, err := os.ReadFile(f.bodyPath(key)) // #nosec G304 -- key is an md5 hex digest
	if err != nil {
		return nil, nil, false
	}
	hdrs := Headers{}
	if raw, err := os.ReadFile(f.headerPath(key)); err == nil { // #nosec G304
		for _, line := range strings.Split(string(raw), "\n") {
			if k, v, ok := strings.Cut(line, ": "); ok {
				hdrs[http.CanonicalHeaderKey(k)] = append(hdrs[http.CanonicalHeaderKey(k)], v)
			}
		}
	}
	return body, hdrs, true
}

func (f *Fetcher) writeCache(key string, body []byte, hdrs Headers) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()

	if err := os.WriteFile(f.bodyPath(key), body, 0o644); err != nil { // #nosec G306
		f.log.Errorf("fetcher: write cache body for %s: %v", key, err)
		return
	}
	var sb strings.Builder
	for k, vs := range hdrs {
		for _, v := range vs {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteByte('\n')
		}
	}
	if err := os.WriteFile(f.headerPath(key), []byte(sb.String()), 0o644); err != nil { // #nosec G306
		f.log.Errorf("fetcher: write cache headers for %s: %v", key, err)
	}
}
