package fingerprint

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	utls "github.com/refraction-networking/utls"
)

func TestTransport_PoolSettings(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p, Options{MaxConnsPerHost: 7, IdleConnTimeout: time.Second})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}
			if tr.MaxConnsPerHost != 7 {
				t.Errorf("expected MaxConnsPerHost 7, got %d", tr.MaxConnsPerHost)
			}
			if !tr.DisableCompression {
				t.Errorf("expected transport decompression disabled")
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Errorf("expected uTLS dialer for %s", p)
			}
		})
	}
}

func TestTransport_GoProfileRoundTrip(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileGo, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := rt.(*http.Transport)
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	resp, err := (&http.Client{Transport: tr}).Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", resp.StatusCode)
	}
}

func TestTransport_UTLSVerifiesCertificates(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileChrome, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = (&http.Client{Transport: rt}).Get(ts.URL)
	if err == nil || !strings.Contains(err.Error(), "utls handshake failed") {
		t.Fatalf("expected handshake failure against self-signed cert, got %v", err)
	}
}

func TestHTTP1Spec(t *testing.T) {
	spec, err := http1Spec(utls.HelloChrome_Auto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			found = true
			if len(alpn.AlpnProtocols) != 1 || alpn.AlpnProtocols[0] != "http/1.1" {
				t.Errorf("expected http/1.1 only, got %v", alpn.AlpnProtocols)
			}
		}
	}
	if !found {
		t.Errorf("expected ALPN extension in Chrome spec")
	}
}

func TestParseProfile(t *testing.T) {
	if p, err := ParseProfile(""); err != nil || p != ProfileChrome {
		t.Errorf("expected chrome default, got %s %v", p, err)
	}
	if p, err := ParseProfile(" Firefox "); err != nil || p != ProfileFirefox {
		t.Errorf("expected firefox, got %s %v", p, err)
	}
	if _, err := ParseProfile("netscape"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}
