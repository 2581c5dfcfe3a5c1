// Package bypass recognises pages served by bot-protection products instead
// of the requested content. sift only detects these pages so the extractor can
// skip them; it never tries to get past a challenge.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of a fetched or rendered page the detectors look at.
type Response struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs the response through all provided detectors and returns the
// first product that matched.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

// HeaderMap flattens single-valued headers (as reported by a browser) into
// the multi-valued form the detectors expect.
func HeaderMap(in map[string]any) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = strings.Split(s, "\n")
		}
	}
	return out
}

func getHeader(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	// A rendered challenge page keeps its title even when the status is lost.
	if bytes.Contains(res.Body, []byte("<title>Just a moment...</title>")) &&
		bytes.Contains(res.Body, []byte("challenge-platform")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}

		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "datadome") {
			return true, "DataDome"
		}

		if getHeader(res.Headers, "X-DataDome") != "" || getHeader(res.Headers, "X-DataDome-Response") != "" {
			return true, "DataDome"
		}

		if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if getHeader(res.Headers, "X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}

		if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(res.Body, []byte("px-captcha")) ||
			bytes.Contains(res.Body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
