package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/codescout/internal/fingerprint"
	"github.com/FranksOps/codescout/internal/storage"
	"github.com/FranksOps/codescout/pkg/proxy"
	"github.com/FranksOps/codescout/pkg/useragent"
)

func newTestFetcher(t *testing.T, cfg FetchConfig) *Fetcher {
	t.Helper()
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("expected configured User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept") == "" {
			t.Errorf("expected Accept header")
		}
		w.Header().Set("X-Test", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	backend := storage.NewMemory()
	fetcher := newTestFetcher(t, FetchConfig{
		Timeout: 5 * time.Second,
		UAPool:  useragent.NewPool([]string{"TestBrowser/1.0"}, useragent.StrategyFixed),
		Backend: backend,
	})

	rec := fetcher.Fetch(context.Background(), storage.StagePage, ts.URL)

	if rec.Outcome != storage.OutcomeOK {
		t.Fatalf("expected ok outcome, got %s (%s)", rec.Outcome, rec.Error)
	}
	if rec.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.StatusCode)
	}
	if string(rec.Body) != "ok" || rec.Bytes != 2 {
		t.Errorf("expected body 'ok' (2 bytes), got %q (%d)", rec.Body, rec.Bytes)
	}
	if http.Header(rec.Headers).Get("X-Test") != "true" {
		t.Errorf("expected X-Test header 'true', got %v", rec.Headers)
	}
	if rec.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
	if rec.ID == "" {
		t.Errorf("expected non-empty UUID")
	}
	if rec.Stage != storage.StagePage {
		t.Errorf("expected page stage, got %s", rec.Stage)
	}

	saved, _ := backend.Query(context.Background(), storage.Filter{})
	if len(saved) != 1 || saved[0].ID != rec.ID {
		t.Errorf("expected the record to be saved to the backend, got %+v", saved)
	}
}

func TestFetcher_DefaultUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{})
	fetcher.Fetch(context.Background(), storage.StageSearch, ts.URL)

	if got != useragent.DefaultPool[0] {
		t.Errorf("expected default browser user agent, got %q", got)
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer ts.Close()

	rec := newTestFetcher(t, FetchConfig{}).Fetch(context.Background(), storage.StageSearch, ts.URL)

	if rec.Outcome != storage.OutcomeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", rec.Outcome)
	}
	if rec.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.StatusCode)
	}
	if rec.Error != "" {
		t.Errorf("expected no transport error, got %s", rec.Error)
	}
}

func TestFetcher_BlockedByBotProtection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	rec := newTestFetcher(t, FetchConfig{}).Fetch(context.Background(), storage.StagePage, ts.URL)

	if rec.Outcome != storage.OutcomeBlocked || rec.DetectionSrc != "Cloudflare" {
		t.Errorf("expected blocked by Cloudflare, got %s %q", rec.Outcome, rec.DetectionSrc)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 10 * time.Millisecond})
	rec := fetcher.Fetch(context.Background(), storage.StagePage, ts.URL)

	if rec.Outcome != storage.OutcomeNetworkFailure {
		t.Errorf("expected network_failure, got %s", rec.Outcome)
	}
	if !strings.Contains(rec.Error, "request failed") {
		t.Errorf("expected timeout error, got %v", rec.Error)
	}
}

func TestFetcher_InvalidURL(t *testing.T) {
	rec := newTestFetcher(t, FetchConfig{}).Fetch(context.Background(), storage.StagePage, "No Link")

	if rec.Outcome != storage.OutcomeNetworkFailure {
		t.Errorf("expected network_failure for unusable URL, got %s", rec.Outcome)
	}
	if rec.Error == "" {
		t.Errorf("expected an error message")
	}
}

func TestFetcher_MaxBodyBytes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer ts.Close()

	rec := newTestFetcher(t, FetchConfig{MaxBodyBytes: 10}).Fetch(context.Background(), storage.StagePage, ts.URL)
	if len(rec.Body) != 10 {
		t.Errorf("expected body capped at 10 bytes, got %d", len(rec.Body))
	}
}

func TestNewFetcher_UnknownFingerprint(t *testing.T) {
	if _, err := NewFetcher(FetchConfig{Fingerprint: "netscape"}); err == nil {
		t.Fatal("expected error for unknown fingerprint")
	}
}

func TestFetcher_ProxyRotation(t *testing.T) {
	var hits [2]atomic.Int32
	newProxy := func(i int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[i].Add(1)
			// A forwarding proxy receives the absolute target URL.
			if r.URL.Host != "example.com" {
				t.Errorf("expected absolute URL for example.com, got %s", r.URL)
			}
			_, _ = w.Write([]byte("proxied"))
		}))
	}
	p0, p1 := newProxy(0), newProxy(1)
	defer p0.Close()
	defer p1.Close()

	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(p0.URL, p1.URL); err != nil {
		t.Fatalf("failed to add proxies: %v", err)
	}

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second, ProxyPool: pool})
	for i := 0; i < 4; i++ {
		rec := fetcher.Fetch(context.Background(), storage.StagePage, "http://example.com/page")
		if rec.Outcome != storage.OutcomeOK || string(rec.Body) != "proxied" {
			t.Fatalf("request %d: expected proxied ok response, got %s %q (%s)", i, rec.Outcome, rec.Body, rec.Error)
		}
	}

	if hits[0].Load() != 2 || hits[1].Load() != 2 {
		t.Errorf("expected requests spread over both proxies, got %d and %d", hits[0].Load(), hits[1].Load())
	}
}

func TestFetcher_ProxyFailuresBenchProxy(t *testing.T) {
	blocking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer blocking.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	tests := []struct {
		name    string
		proxy   string
		outcome storage.Outcome
		benched bool
	}{
		{"blocked", blocking.URL, storage.OutcomeBlocked, true},
		{"unreachable", deadURL, storage.OutcomeNetworkFailure, true},
		{"upstream error", notFound.URL, storage.OutcomeUpstreamUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour})
			if err := pool.Add(tt.proxy); err != nil {
				t.Fatalf("failed to add proxy: %v", err)
			}

			fetcher := newTestFetcher(t, FetchConfig{Timeout: 2 * time.Second, ProxyPool: pool})
			rec := fetcher.Fetch(context.Background(), storage.StagePage, "http://example.com/page")
			if rec.Outcome != tt.outcome {
				t.Fatalf("expected outcome %s, got %s (%s)", tt.outcome, rec.Outcome, rec.Error)
			}

			if benched := pool.Next() == nil; benched != tt.benched {
				t.Errorf("expected benched=%v, got %v", tt.benched, benched)
			}
		})
	}
}
