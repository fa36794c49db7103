package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the slice of a vendor reply the detectors look at.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
// Akamai comes first: every vendor site in scope sits behind it.
func DefaultDetectors() []Detector {
	return []Detector{
		detectAkamai,
		detectCloudflare,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs the response through detectors and reports the first source
// that triggered.
func Detect(res *Response, detectors []Detector) (string, bool) {
	if res == nil {
		return "", false
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return source, true
		}
	}
	return "", false
}

func blocked(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func serverContains(res *Response, s string) bool {
	return strings.Contains(strings.ToLower(res.Header.Get("Server")), s)
}

func bodyContains(res *Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(res.Body, []byte(n)) {
			return true
		}
	}
	return false
}

// detectAkamai looks for Akamai Bot Manager signatures, including the
// sensor challenge page that is served with a 200.
func detectAkamai(res *Response) (bool, string) {
	if bodyContains(res, "sec-if-cpt-container", "/_sec/cp_challenge/") {
		return true, "Akamai"
	}
	if !blocked(res.Status) {
		return false, ""
	}
	if serverContains(res, "akamai") {
		return true, "Akamai"
	}
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	for _, c := range res.Header.Values("Set-Cookie") {
		if strings.HasPrefix(c, "_abck=") || strings.HasPrefix(c, "bm_sz=") {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (bool, string) {
	if res.Status != http.StatusForbidden && res.Status != http.StatusServiceUnavailable {
		return false, ""
	}
	if serverContains(res, "cloudflare") {
		return true, "Cloudflare"
	}
	if bodyContains(res, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *Response) (bool, string) {
	if res.Status != http.StatusForbidden {
		return false, ""
	}
	if serverContains(res, "datadome") || res.Header.Get("X-DataDome") != "" || res.Header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyContains(res, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *Response) (bool, string) {
	if res.Status != http.StatusForbidden {
		return false, ""
	}
	if res.Header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyContains(res, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}
