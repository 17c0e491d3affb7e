package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/codescout/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescout_fetch_requests_total",
			Help: "Total number of outbound requests by pipeline stage and outcome",
		},
		[]string{"stage", "domain", "status", "outcome", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codescout_fetch_duration_seconds",
			Help:    "Duration of outbound requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescout_fetch_bytes_total",
			Help: "Total response bytes downloaded",
		},
		[]string{"stage"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescout_proxy_failures_total",
			Help: "Total requests through a proxy that were blocked or failed in transport",
		},
		[]string{"proxy"},
	)

	SnippetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescout_snippets_extracted_total",
			Help: "Total code snippets matched by the language heuristic",
		},
		[]string{"language"},
	)
)

// RecordFetch updates the request metrics from a fetch record.
func RecordFetch(domain string, r *storage.FetchRecord) {
	if r == nil {
		return
	}

	status := strconv.Itoa(r.StatusCode)
	if r.Error != "" {
		status = "error"
	}
	stage := string(r.Stage)

	FetchRequestsTotal.WithLabelValues(stage, domain, status, string(r.Outcome), r.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(stage).Observe(r.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(stage).Add(float64(r.Bytes))
}

// RecordProxyFailure counts a failed request through proxy.
func RecordProxyFailure(proxy string) {
	ProxyFailures.WithLabelValues(proxy).Inc()
}

// RecordSnippets counts snippets extracted for a language.
func RecordSnippets(language string, n int) {
	if n <= 0 {
		return
	}
	SnippetsTotal.WithLabelValues(language).Add(float64(n))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr (e.g. ":9090") and serves /metrics in the background.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
