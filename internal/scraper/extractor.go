package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/codescout/internal/analyzer"
	"github.com/FranksOps/codescout/internal/metrics"
	"github.com/FranksOps/codescout/internal/storage"
)

// DefaultPageTimeout bounds each page fetch made by an Extractor.
const DefaultPageTimeout = 10 * time.Second

// Extraction is the result of scanning one page. Snippets is never nil;
// Outcome tells an empty page apart from a page that could not be read.
type Extraction struct {
	URL      string
	Snippets []string
	Outcome  storage.Outcome
}

// Extractor fetches result pages and keeps the content blocks that look like
// code in the requested language.
type Extractor struct {
	fetcher    *Fetcher
	heuristics analyzer.Heuristics
	timeout    time.Duration
	logger     *slog.Logger
}

// NewExtractor creates an Extractor. A zero timeout selects
// DefaultPageTimeout.
func NewExtractor(fetcher *Fetcher, heuristics analyzer.Heuristics, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		fetcher:    fetcher,
		heuristics: heuristics,
		timeout:    timeout,
		logger:     logger,
	}
}

// Extract returns the matching code blocks of the page at url, in document
// order. Unknown languages, failed requests and non-2xx responses all yield
// an empty slice.
func (e *Extractor) Extract(ctx context.Context, url, language string) []string {
	return e.Scan(ctx, url, language).Snippets
}

// Scan is Extract with the outcome of the page fetch attached. An unknown
// language is reported as OutcomeOK without any request being made.
func (e *Extractor) Scan(ctx context.Context, url, language string) Extraction {
	ext := Extraction{URL: url, Snippets: []string{}, Outcome: storage.OutcomeOK}

	keywords := e.heuristics.Keywords(language)
	if len(keywords) == 0 {
		e.logger.Debug("no heuristic for language, skipping page", "language", language, "url", url)
		return ext
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	record := e.fetcher.Fetch(ctx, storage.StagePage, url)
	ext.Outcome = record.Outcome
	if record.Outcome.Degraded() {
		return ext
	}

	snippets, err := analyzer.MatchHTML(BodyReader(record), keywords)
	if err != nil {
		e.logger.Warn("failed to parse page", "url", url, "err", err)
		ext.Outcome = storage.OutcomeNetworkFailure
		return ext
	}

	ext.Snippets = snippets
	metrics.RecordSnippets(analyzer.Canonical(language), len(snippets))
	return ext
}
