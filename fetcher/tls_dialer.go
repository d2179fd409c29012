package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// insecureTLSConfig returns the stdlib TLS config used for subscription
// fetches: verification is disabled for historical compatibility with
// self-signed subscription endpoints (spec.md §4.C1).
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} // #nosec G402 – intentional, see spec.md §4.C1
}

// UTLSDialer returns a DialTLSContext-compatible function that performs the
// TLS handshake using the uTLS library, impersonating the browser
// fingerprint described by helloID. Subscription hosts are frequently
// fronted by CDN/anti-bot layers that fingerprint the ClientHello; parroting
// a real Chrome handshake measurably reduces false-positive blocks compared
// to Go's native TLS stack.
//
// The returned dialer is safe for concurrent use and is designed to be
// wired directly into an http.Transport.DialTLSContext field.
func UTLSDialer(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		uCfg := &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: true, // #nosec G402 – subscription fetches never verify certs, see spec.md §4.C1
		}

		uConn := utls.UClient(rawConn, uCfg, helloID)

		spec := buildClientHelloSpec(helloID)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = rawConn.Close()
			return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}

		return uConn, nil
	}
}

// UTLSDialerHTTP1 adapts UTLSDialer to the http.Transport.DialTLSContext
// signature, which carries no *tls.Config argument (SNI is derived solely
// from addr).
func UTLSDialerHTTP1(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := UTLSDialer(helloID)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, nil)
	}
}

// buildClientHelloSpec returns the ClientHelloSpec for the given helloID,
// falling back to the library default for unrecognised IDs.
func buildClientHelloSpec(helloID utls.ClientHelloID) utls.ClientHelloSpec {
	switch helloID {
	case utls.HelloChrome_120, utls.HelloChrome_120_PQ, utls.HelloChrome_131, utls.HelloChrome_Auto:
		if spec, err := utls.UTLSIdToSpec(helloID); err == nil {
			return spec
		}
	}
	return utls.ClientHelloSpec{}
}
