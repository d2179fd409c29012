// Package fetcher implements C1: retrieving bytes from http(s)://, data:, or
// local-file sources, with a TTL-based on-disk cache and captured response
// headers.
package fetcher

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	utls "github.com/refraction-networking/utls"
)

// transportDefaults groups transport-layer knobs set once at construction.
// Sized for a handful of concurrent workers (default max_concurrent_threads
// is 4) rather than the thousands of sessions the original session-pool
// client was tuned for, since a converter worker makes at most a few
// upstream calls per request.
type transportDefaults struct {
	maxIdleConns        int
	maxIdleConnsPerHost int
	maxConnsPerHost     int
}

var defaultTransport = transportDefaults{
	maxIdleConns:        100,
	maxIdleConnsPerHost: 20,
	maxConnsPerHost:     40,
}

// NewHTTPClient builds an *http.Client tuned for subscription/ruleset
// fetching: TLS verification disabled (historical compatibility with
// self-signed subscription endpoints, spec.md §4.C1), redirects followed,
// and a ClientHello shaped by uTLS to reduce false positives from
// anti-bot-fronted hosts.
//
// proxyArg selects the outbound proxy:
//
//	""       or "NONE"   -> direct connection
//	"SYSTEM"             -> honour HTTP_PROXY/HTTPS_PROXY/NO_PROXY env vars
//	"socks5://host:port" -> dial through the given SOCKS5 proxy
//	"http(s)://host:port"-> CONNECT through the given HTTP(S) proxy
func NewHTTPClient(proxyArg string, timeout time.Duration) (*http.Client, error) {
	transport, err := buildTransport(proxyArg)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		// CheckRedirect left nil: redirects are followed automatically up
		// to the stdlib's default limit of 10, per spec.md §4.C1.
	}, nil
}

func buildTransport(proxyArg string) (*http.Transport, error) {
	t := &http.Transport{
		DisableKeepAlives:     false,
		MaxIdleConns:          defaultTransport.maxIdleConns,
		MaxIdleConnsPerHost:   defaultTransport.maxIdleConnsPerHost,
		MaxConnsPerHost:       defaultTransport.maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialTLSContext:        UTLSDialerHTTP1(utls.HelloChrome_Auto),
	}

	switch proxyArg {
	case "", "NONE":
		// direct; leave t.Proxy/DialContext unset.
	case "SYSTEM":
		t.Proxy = http.ProxyFromEnvironment
	default:
		u, err := url.Parse(proxyArg)
		if err != nil {
			return nil, fmt.Errorf("fetcher: parse proxy URL %q: %w", proxyArg, err)
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("fetcher: build socks5 dialer for %q: %w", proxyArg, err)
			}
			// uTLS fingerprinting and SOCKS5 dialing are mutually
			// exclusive here: once the transport dials through a SOCKS5
			// proxy we fall back to the stock TLS stack, since uTLS's
			// DialTLSContext hook expects to own the raw TCP dial.
			t.DialTLSContext = nil
			t.TLSClientConfig = insecureTLSConfig()
			t.Dial = dialer.Dial //nolint:staticcheck // proxy.Dialer has no DialContext
		case "http", "https":
			t.Proxy = http.ProxyURL(u)
		default:
			return nil, fmt.Errorf("fetcher: unsupported proxy scheme %q", u.Scheme)
		}
	}

	return t, nil
}
