package scraper

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/codescout/internal/bypass"
	"github.com/FranksOps/codescout/internal/fingerprint"
	"github.com/FranksOps/codescout/internal/metrics"
	"github.com/FranksOps/codescout/internal/storage"
	"github.com/FranksOps/codescout/pkg/httpclient"
	"github.com/FranksOps/codescout/pkg/proxy"
	"github.com/FranksOps/codescout/pkg/useragent"
	"github.com/google/uuid"
)

const defaultMaxBodyBytes = 10 << 20

type proxyKey struct{}

// proxyFromContext routes a request through the proxy the Fetcher attached
// to its context, falling back to the environment settings.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}

// FetchConfig configures the shared Fetcher.
type FetchConfig struct {
	// Timeout is the hard upper bound per request. Callers may impose a
	// shorter deadline through the context.
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	UAPool       *useragent.Pool
	// ProxyPool, when set, supplies one proxy per request. Blocked and
	// failed requests count against the proxy that carried them.
	ProxyPool   *proxy.Pool
	Fingerprint fingerprint.Profile
	// RootCAs overrides the system trust store, mainly for tests.
	RootCAs *x509.CertPool
	// MaxBodyBytes caps how much of a response is read.
	MaxBodyBytes int64
	// Backend receives one audit record per request. Optional.
	Backend storage.Backend
	Logger  *slog.Logger
}

// Fetcher performs single GET requests with browser identification and
// turns every outcome, including transport failures, into a FetchRecord.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration. A single
// client is held across requests so connections are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil, useragent.StrategyFixed)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, cfg.RootCAs)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}
	// Through an HTTP proxy net/http tunnels with CONNECT and performs the
	// TLS handshake itself, so the uTLS fingerprint covers direct
	// connections only.
	if t, ok := transport.(*http.Transport); ok {
		t.Proxy = proxyFromContext
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
		logger: cfg.Logger,
	}, nil
}

// Fetch executes a GET request to targetURL. It never returns an error: the
// record's Outcome says whether Body holds usable data. The record is saved
// to the configured backend and counted in metrics before it is returned.
func (f *Fetcher) Fetch(ctx context.Context, stage storage.Stage, targetURL string) *storage.FetchRecord {
	start := time.Now()
	record := &storage.FetchRecord{
		ID:        uuid.New().String(),
		Stage:     stage,
		URL:       targetURL,
		CreatedAt: start.UTC(),
	}

	var via *url.URL
	if f.config.ProxyPool != nil {
		via = f.config.ProxyPool.Next()
		if via != nil {
			ctx = context.WithValue(ctx, proxyKey{}, via)
		}
	}

	f.do(ctx, record)
	record.Duration = time.Since(start)
	bypass.Analyze(record, bypass.DefaultSignatures())

	f.reportProxy(via, record)
	f.finish(ctx, record)
	return record
}

// reportProxy feeds the outcome back to the pool. An upstream error status
// still proves the proxy works.
func (f *Fetcher) reportProxy(via *url.URL, record *storage.FetchRecord) {
	if via == nil {
		return
	}
	switch record.Outcome {
	case storage.OutcomeBlocked, storage.OutcomeNetworkFailure:
		_ = f.config.ProxyPool.MarkFailure(via)
		metrics.RecordProxyFailure(via.Redacted())
		f.logger.Debug("proxy failure", "proxy", via.Redacted(), "url", record.URL, "outcome", record.Outcome)
	default:
		_ = f.config.ProxyPool.MarkSuccess(via)
	}
}

func (f *Fetcher) do(ctx context.Context, record *storage.FetchRecord) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, record.URL, nil)
	if err != nil {
		record.Outcome = storage.OutcomeNetworkFailure
		record.Error = fmt.Sprintf("failed to create request: %v", err)
		return
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		record.Outcome = storage.OutcomeNetworkFailure
		record.Error = fmt.Sprintf("request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	record.StatusCode = resp.StatusCode
	record.Headers = resp.Header

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	record.Bytes = int64(len(body))
	if err != nil {
		record.Outcome = storage.OutcomeNetworkFailure
		record.Error = fmt.Sprintf("failed to read body: %v", err)
		return
	}
	record.Body = body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		record.Outcome = storage.OutcomeUpstreamUnavailable
		return
	}
	record.Outcome = storage.OutcomeOK
}

func (f *Fetcher) finish(ctx context.Context, record *storage.FetchRecord) {
	domain := ""
	if u, err := url.Parse(record.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordFetch(domain, record)

	if record.Outcome.Degraded() {
		f.logger.Warn("fetch degraded",
			"stage", record.Stage,
			"url", record.URL,
			"status", record.StatusCode,
			"outcome", record.Outcome,
			"detection_src", record.DetectionSrc,
			"err", record.Error,
		)
	} else {
		f.logger.Debug("fetched",
			"stage", record.Stage,
			"url", record.URL,
			"status", record.StatusCode,
			"bytes", record.Bytes,
			"duration", record.Duration,
		)
	}

	if f.config.Backend == nil {
		return
	}
	// The audit write must not be cut short by the request deadline.
	if err := f.config.Backend.Save(context.WithoutCancel(ctx), record); err != nil {
		f.logger.Error("failed to save fetch record", "url", record.URL, "err", err)
	}
}
