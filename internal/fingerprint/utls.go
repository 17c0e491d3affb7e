package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello a transport presents.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedNoALPN,
}

// ParseProfile validates a profile name from configuration.
func ParseProfile(s string) (Profile, error) {
	p := Profile(s)
	if p == ProfileGo {
		return p, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("unknown fingerprint profile %q", s)
	}
	return p, nil
}

// Transport returns an http.RoundTripper presenting the given TLS
// fingerprint. ProfileGo yields a plain clone of http.DefaultTransport; the
// other profiles perform the handshake through utls.UClient. rootCAs
// overrides the system roots when non-nil. Plain HTTP requests are
// unaffected by the profile.
func Transport(p Profile, rootCAs *x509.CertPool) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p == ProfileGo {
		if rootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: rootCAs}
		}
		return transport, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("unknown fingerprint profile %q", p)
	}

	// net/http cannot run h2 over a *utls.UConn, so only HTTP/1.1 is offered.
	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newUConn(tcpConn, host, helloID, rootCAs)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake with %s failed: %w", host, err)
		}
		return uConn, nil
	}

	return transport, nil
}

// newUConn builds a uTLS client whose ALPN offers only http/1.1. Randomized
// profiles have no fixed spec and are used without ALPN instead.
func newUConn(conn net.Conn, host string, helloID utls.ClientHelloID, rootCAs *x509.CertPool) (*utls.UConn, error) {
	cfg := &utls.Config{ServerName: host, RootCAs: rootCAs}
	if helloID == utls.HelloRandomizedNoALPN {
		return utls.UClient(conn, cfg, helloID), nil
	}

	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return nil, fmt.Errorf("build client hello for %s: %w", helloID.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("apply client hello for %s: %w", helloID.Str(), err)
	}
	return uConn, nil
}
