package serp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/codescout/internal/scraper"
	"github.com/FranksOps/codescout/internal/storage"
	"github.com/PuerkitoBio/goquery"
)

// DefaultBingEndpoint is the Bing web results page.
const DefaultBingEndpoint = "https://www.bing.com/search"

// ensure Bing implements Provider
var _ Provider = (*Bing)(nil)

// Bing scrapes the Bing HTML results page.
type Bing struct {
	fetcher  *scraper.Fetcher
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewBing creates a Bing provider. An empty endpoint selects
// DefaultBingEndpoint. A positive timeout bounds the results page request;
// zero leaves only the fetcher's own limit.
func NewBing(fetcher *scraper.Fetcher, endpoint string, timeout time.Duration, logger *slog.Logger) *Bing {
	if endpoint == "" {
		endpoint = DefaultBingEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bing{fetcher: fetcher, endpoint: endpoint, timeout: timeout, logger: logger}
}

// URL builds the request URL for q: the phrase, the result count and the
// interface language.
func (b *Bing) URL(q Query) string {
	return fmt.Sprintf("%s?q=%s&count=%d&setlang=%s",
		b.endpoint,
		url.QueryEscape(q.Phrase()),
		q.MaxResults,
		url.QueryEscape(q.SpokenLanguage),
	)
}

// Search fetches the results page for q and parses at most q.MaxResults
// entries in page order. A failed or non-2xx request yields an empty slice.
func (b *Bing) Search(ctx context.Context, q Query) []SearchResult {
	if q.MaxResults <= 0 {
		return []SearchResult{}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	record := b.fetcher.Fetch(ctx, storage.StageSearch, b.URL(q))
	if record.Outcome.Degraded() {
		return []SearchResult{}
	}

	doc, err := goquery.NewDocumentFromReader(scraper.BodyReader(record))
	if err != nil {
		b.logger.Warn("failed to parse results page", "url", record.URL, "err", err)
		return []SearchResult{}
	}

	results := ParseResults(doc, q.MaxResults)
	b.logger.Debug("parsed results page", "query", q.Phrase(), "results", len(results))
	return results
}

// ParseResults extracts up to limit organic result entries (li.b_algo) from
// a Bing results page. Missing elements become the placeholder constants.
func ParseResults(doc *goquery.Document, limit int) []SearchResult {
	results := []SearchResult{}
	doc.Find("li.b_algo").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		results = append(results, SearchResult{
			Title:   textOr(item.Find("h2").First(), NoTitle),
			Link:    hrefOr(item.Find("a").First(), NoLink),
			Snippet: textOr(item.Find("p").First(), NoSnippet),
		})
		return true
	})
	return results
}

func textOr(s *goquery.Selection, fallback string) string {
	if s.Length() == 0 {
		return fallback
	}
	return strings.TrimSpace(s.Text())
}

func hrefOr(s *goquery.Selection, fallback string) string {
	href, ok := s.Attr("href")
	if !ok {
		return fallback
	}
	return href
}
