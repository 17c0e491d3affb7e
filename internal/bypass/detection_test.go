package bypass

import (
	"testing"

	"github.com/FranksOps/codescout/internal/storage"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		record  storage.FetchRecord
		wantSrc string
	}{
		{
			name:   "plain ok page",
			record: storage.FetchRecord{StatusCode: 200, Headers: map[string][]string{"Server": {"nginx"}}, Body: []byte("OK")},
		},
		{
			name:    "cloudflare server header",
			record:  storage.FetchRecord{StatusCode: 403, Headers: map[string][]string{"Server": {"cloudflare"}}, Body: []byte("Access Denied")},
			wantSrc: "Cloudflare",
		},
		{
			name:    "cloudflare turnstile body",
			record:  storage.FetchRecord{StatusCode: 503, Body: []byte("<html>... cf-turnstile ...</html>")},
			wantSrc: "Cloudflare",
		},
		{
			name:   "cloudflare marker on a 200 is not a challenge",
			record: storage.FetchRecord{StatusCode: 200, Body: []byte("how to bypass cf-turnstile in python")},
		},
		{
			name:    "akamai server header",
			record:  storage.FetchRecord{StatusCode: 403, Headers: map[string][]string{"Server": {"AkamaiGHost"}}},
			wantSrc: "Akamai",
		},
		{
			name:    "akamai reference page",
			record:  storage.FetchRecord{StatusCode: 403, Body: []byte("Access Denied... Reference #123.456")},
			wantSrc: "Akamai",
		},
		{
			name:   "akamai needs both markers",
			record: storage.FetchRecord{StatusCode: 403, Body: []byte("Reference #123.456")},
		},
		{
			name:    "datadome header",
			record:  storage.FetchRecord{StatusCode: 403, Headers: map[string][]string{"x-datadome": {"1"}}},
			wantSrc: "DataDome",
		},
		{
			name:    "datadome captcha body",
			record:  storage.FetchRecord{StatusCode: 403, Body: []byte(`<script src="https://geo.captcha-delivery.com/x.js">`)},
			wantSrc: "DataDome",
		},
		{
			name:    "perimeterx body",
			record:  storage.FetchRecord{StatusCode: 403, Body: []byte(`<div id="px-captcha"></div>`)},
			wantSrc: "PerimeterX",
		},
		{
			name:    "bing captcha",
			record:  storage.FetchRecord{StatusCode: 429, Body: []byte(`<div id="b_captcha">verify</div>`)},
			wantSrc: "Bing",
		},
		{
			name:   "plain rate limit",
			record: storage.FetchRecord{StatusCode: 429, Body: []byte("slow down")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.record
			r.Outcome = storage.OutcomeUpstreamUnavailable
			detected := Analyze(&r, DefaultSignatures())

			if detected != (tt.wantSrc != "") {
				t.Fatalf("expected detected=%v, got %v", tt.wantSrc != "", detected)
			}
			if r.DetectionSrc != tt.wantSrc {
				t.Errorf("expected source %q, got %q", tt.wantSrc, r.DetectionSrc)
			}
			if detected && r.Outcome != storage.OutcomeBlocked {
				t.Errorf("expected outcome blocked, got %s", r.Outcome)
			}
			if !detected && r.Outcome != storage.OutcomeUpstreamUnavailable {
				t.Errorf("expected outcome untouched, got %s", r.Outcome)
			}
		})
	}
}

func TestAnalyze_ClearsStaleDetection(t *testing.T) {
	r := &storage.FetchRecord{StatusCode: 200, DetectedBot: true, DetectionSrc: "Cloudflare"}
	if Analyze(r, DefaultSignatures()) {
		t.Fatal("expected no detection")
	}
	if r.DetectedBot || r.DetectionSrc != "" {
		t.Errorf("expected detection fields cleared, got %v %q", r.DetectedBot, r.DetectionSrc)
	}
}

func TestAnalyze_Nil(t *testing.T) {
	if Analyze(nil, DefaultSignatures()) {
		t.Error("expected nil record not to be detected")
	}
}
