// Package bypass recognizes bot-protection challenge pages so a degraded
// fetch can be reported as blocked rather than as a plain upstream error.
package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/codescout/internal/storage"
)

// Signature describes how one protection vendor presents a challenge.
type Signature struct {
	Source string
	// Statuses the vendor uses for challenges. Responses with any other
	// status are never attributed to it.
	Statuses []int
	// ServerContains matches a lower-cased substring of the Server header.
	ServerContains string
	// Headers whose presence alone identifies the vendor.
	Headers []string
	// BodyMarkers are substrings of the response body; any one matches.
	BodyMarkers []string
	// BodyAll are substrings that must all be present to match.
	BodyAll []string
}

// DefaultSignatures returns the built-in vendor signatures.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Source:         "Cloudflare",
			Statuses:       []int{http.StatusForbidden, http.StatusServiceUnavailable},
			ServerContains: "cloudflare",
			BodyMarkers:    []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"},
		},
		{
			Source:         "Akamai",
			Statuses:       []int{http.StatusForbidden},
			ServerContains: "akamai",
			BodyAll:        []string{"Reference #", "Access Denied"},
		},
		{
			Source:         "DataDome",
			Statuses:       []int{http.StatusForbidden},
			ServerContains: "datadome",
			Headers:        []string{"X-DataDome", "X-DataDome-Response"},
			BodyMarkers:    []string{"geo.captcha-delivery.com", "datadome"},
		},
		{
			Source:      "PerimeterX",
			Statuses:    []int{http.StatusForbidden},
			Headers:     []string{"X-Px-Captcha"},
			BodyMarkers: []string{"client.perimeterx.net", "px-captcha", "_pxBlock"},
		},
		{
			Source:      "Bing",
			Statuses:    []int{http.StatusForbidden, http.StatusTooManyRequests},
			BodyMarkers: []string{"b_captcha", "/challenge/verify", "captcha.bing.com"},
		},
	}
}

// Match reports whether the record looks like this vendor's challenge.
func (s Signature) Match(r *storage.FetchRecord) bool {
	if !containsStatus(s.Statuses, r.StatusCode) {
		return false
	}
	if s.ServerContains != "" && strings.Contains(strings.ToLower(header(r.Headers, "Server")), s.ServerContains) {
		return true
	}
	for _, h := range s.Headers {
		if header(r.Headers, h) != "" {
			return true
		}
	}
	for _, m := range s.BodyMarkers {
		if bytes.Contains(r.Body, []byte(m)) {
			return true
		}
	}
	if len(s.BodyAll) > 0 {
		for _, m := range s.BodyAll {
			if !bytes.Contains(r.Body, []byte(m)) {
				return false
			}
		}
		return true
	}
	return false
}

// Analyze runs the record through the signatures in order. The first match
// marks the record as blocked; otherwise detection fields are cleared and
// the outcome is left alone.
func Analyze(r *storage.FetchRecord, signatures []Signature) bool {
	if r == nil {
		return false
	}
	for _, s := range signatures {
		if s.Match(r) {
			r.DetectedBot = true
			r.DetectionSrc = s.Source
			r.Outcome = storage.OutcomeBlocked
			return true
		}
	}
	r.DetectedBot = false
	r.DetectionSrc = ""
	return false
}

func containsStatus(statuses []int, code int) bool {
	for _, s := range statuses {
		if s == code {
			return true
		}
	}
	return false
}

// header looks key up canonically first, then case-insensitively for maps
// that were not built by net/http.
func header(headers map[string][]string, key string) string {
	if v := http.Header(headers).Get(key); v != "" {
		return v
	}
	for k, vals := range headers {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
