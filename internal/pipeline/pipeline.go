package pipeline

import (
	"context"
	"log/slog"

	"github.com/FranksOps/codescout/internal/serp"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel page extractions.
const DefaultConcurrency = 4

// Extractor returns the code snippets of one page. Failures are reported as
// an empty slice.
type Extractor interface {
	Extract(ctx context.Context, url, language string) []string
}

// Pipeline runs a search and then extracts code from every result page.
type Pipeline struct {
	Provider  serp.Provider
	Extractor Extractor
	// Concurrency caps in-flight page fetches; 1 processes results strictly
	// one after another.
	Concurrency int
	Logger      *slog.Logger
}

// Run searches for q and attaches the code snippets of each result page.
// Results keep the search engine's order and CodeSnippets is never nil.
// Run has no error path: an unreachable search engine gives an empty slice
// and an unreachable page gives an empty CodeSnippets for that result only.
func (p *Pipeline) Run(ctx context.Context, q serp.Query) []serp.SearchResult {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := p.Provider.Search(ctx, q)
	logger.Info("search finished", "query", q.Phrase(), "results", len(results))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range results {
		results[i].CodeSnippets = []string{}
		if results[i].Link == serp.NoLink {
			continue
		}
		// Each goroutine owns results[i], so no locking is needed.
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			snippets := p.Extractor.Extract(gCtx, results[i].Link, q.ProgrammingLanguage)
			if snippets != nil {
				results[i].CodeSnippets = snippets
			}
			logger.Debug("page scanned", "url", results[i].Link, "snippets", len(results[i].CodeSnippets))
			return nil
		})
	}
	_ = g.Wait()

	return results
}
