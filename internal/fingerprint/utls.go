package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a configuration string to a Profile. Empty selects
// Chrome, the browser whose headers the vendor client sends.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileChrome, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
}

// Options tunes the pooled transport shared by one vendor engine.
type Options struct {
	// Proxy selects a proxy per request; nil disables proxying.
	Proxy func(*http.Request) (*url.URL, error)
	// MaxConnsPerHost bounds the pool. Zero means 50.
	MaxConnsPerHost int
	// IdleConnTimeout closes idle pooled connections. Zero means 90s.
	IdleConnTimeout time.Duration
	// DialTimeout bounds the TCP connect. Zero means 20s.
	DialTimeout time.Duration
}

// Transport returns a pooled http.RoundTripper that presents the TLS
// fingerprint of p. Response decompression is left to the caller so the
// advertised Accept-Encoding matches a browser.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = 50
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 20 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = opts.Proxy
	transport.MaxConnsPerHost = opts.MaxConnsPerHost
	transport.MaxIdleConnsPerHost = opts.MaxConnsPerHost
	transport.IdleConnTimeout = opts.IdleConnTimeout
	transport.DisableCompression = true
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	if p == ProfileGo {
		return transport, nil
	}

	var clientHelloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		clientHelloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		clientHelloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		clientHelloID = utls.HelloIOS_Auto
	case ProfileRandom:
		clientHelloID = utls.HelloRandomizedALPN
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	// net/http speaks HTTP/1.1 over a custom TLS dialer, so ALPN must not
	// offer h2.
	_, specErr := http1Spec(clientHelloID)

	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		var uConn *utls.UConn
		if specErr == nil {
			// extensions are mutated by the handshake; build a fresh spec per dial
			spec, _ := http1Spec(clientHelloID)
			uConn = utls.UClient(tcpConn, &utls.Config{ServerName: host}, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = tcpConn.Close()
				return nil, fmt.Errorf("fingerprint: apply preset: %w", err)
			}
		} else {
			uConn = utls.UClient(tcpConn, &utls.Config{ServerName: host, NextProtos: []string{"http/1.1"}}, clientHelloID)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

// http1Spec returns the ClientHello of id with ALPN restricted to
// http/1.1. Randomized profiles have no fixed spec and return an error.
func http1Spec(id utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, nil
}
