package serp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/codescout/internal/fingerprint"
	"github.com/FranksOps/codescout/internal/scraper"
	"github.com/FranksOps/codescout/internal/storage"
	"github.com/PuerkitoBio/goquery"
)

func resultsPage(n int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><ol id="b_results">`)
	sb.WriteString(`<li class="b_ad"><h2>Sponsored</h2><a href="https://ads.example.com">ad</a><p>buy</p></li>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<li class="b_algo"><h2><a href="https://example.com/%d">Result %d</a></h2><div class="b_caption"><p>Snippet %d</p></div></li>`, i, i, i)
	}
	sb.WriteString(`</ol></body></html>`)
	return sb.String()
}

func newTestBing(t *testing.T, handler http.HandlerFunc) (*Bing, *storage.Memory) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	backend := storage.NewMemory()
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Fingerprint: fingerprint.ProfileGo,
		Backend:     backend,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return NewBing(fetcher, ts.URL+"/search", 0, nil), backend
}

func TestBing_URL(t *testing.T) {
	b := NewBing(nil, "", 0, nil)
	q := NewQuery("sort a list", "python")

	got := b.URL(q)
	want := "https://www.bing.com/search?q=sort+a+list+python&count=10&setlang=en"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	q.Query = "c++ & templates"
	q.SpokenLanguage = "de"
	q.MaxResults = 3
	got = b.URL(q)
	want = "https://www.bing.com/search?q=c%2B%2B+%26+templates+python&count=3&setlang=de"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBing_Search(t *testing.T) {
	b, backend := newTestBing(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "sort a list python" {
			t.Errorf("expected phrase with language, got %q", got)
		}
		if r.URL.Query().Get("count") != "2" || r.URL.Query().Get("setlang") != "en" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0") {
			t.Errorf("expected browser user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage(5)))
	})

	q := NewQuery("sort a list", "python")
	q.MaxResults = 2
	got := b.Search(context.Background(), q)

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	for i, r := range got {
		if r.Title != fmt.Sprintf("Result %d", i) {
			t.Errorf("result %d: unexpected title %q", i, r.Title)
		}
		if r.Link != fmt.Sprintf("https://example.com/%d", i) {
			t.Errorf("result %d: unexpected link %q", i, r.Link)
		}
		if r.Snippet != fmt.Sprintf("Snippet %d", i) {
			t.Errorf("result %d: unexpected snippet %q", i, r.Snippet)
		}
	}

	records, _ := backend.Query(context.Background(), storage.Filter{Stage: storage.StageSearch})
	if len(records) != 1 || records[0].Outcome != storage.OutcomeOK {
		t.Errorf("expected one ok search record, got %+v", records)
	}
}

func TestBing_SearchTruncation(t *testing.T) {
	b, _ := newTestBing(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(resultsPage(4)))
	})

	for k := 0; k <= 6; k++ {
		q := NewQuery("q", "java")
		q.MaxResults = k
		got := b.Search(context.Background(), q)
		if len(got) > k {
			t.Errorf("MaxResults=%d: got %d results", k, len(got))
		}
		if want := min(k, 4); len(got) != want {
			t.Errorf("MaxResults=%d: expected %d results, got %d", k, want, len(got))
		}
	}
}

func TestBing_ServiceUnavailable(t *testing.T) {
	b, backend := newTestBing(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		// A 503 body that still looks like results must be ignored.
		_, _ = w.Write([]byte(resultsPage(3)))
	})

	got := b.Search(context.Background(), NewQuery("sort a list", "python"))
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}

	records, _ := backend.Query(context.Background(), storage.Filter{})
	if len(records) != 1 || records[0].Outcome != storage.OutcomeUpstreamUnavailable {
		t.Errorf("expected an upstream_unavailable record, got %+v", records)
	}
}

func TestBing_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := ts.URL
	ts.Close()

	fetcher, _ := scraper.NewFetcher(scraper.FetchConfig{Fingerprint: fingerprint.ProfileGo})
	b := NewBing(fetcher, endpoint, 0, nil)

	if got := b.Search(context.Background(), NewQuery("q", "python")); len(got) != 0 {
		t.Errorf("expected no results from an unreachable endpoint, got %d", len(got))
	}
}

func TestBing_SearchDecodesCharset(t *testing.T) {
	b, _ := newTestBing(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<ol><li class=\"b_algo\"><h2><a href=\"https://example.com\">Caf\xe9</a></h2><p>r\xe9sum\xe9</p></li></ol>"))
	})

	got := b.Search(context.Background(), NewQuery("q", "python"))
	if len(got) != 1 || got[0].Title != "Café" || got[0].Snippet != "résumé" {
		t.Errorf("expected decoded Latin-1 text, got %+v", got)
	}
}

func TestBing_SearchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	backend := storage.NewMemory()
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		Backend:     backend,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	b := NewBing(fetcher, ts.URL, 50*time.Millisecond, nil)

	start := time.Now()
	if got := b.Search(context.Background(), NewQuery("q", "python")); len(got) != 0 {
		t.Errorf("expected no results after timeout, got %d", len(got))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected the search deadline to apply, took %v", elapsed)
	}

	records, _ := backend.Query(context.Background(), storage.Filter{})
	if len(records) != 1 || records[0].Outcome != storage.OutcomeNetworkFailure {
		t.Errorf("expected a network_failure record, got %+v", records)
	}
}

func TestParseResults_Placeholders(t *testing.T) {
	page := `<ol>
<li class="b_algo"><div>no heading, anchor or paragraph</div></li>
<li class="b_algo"><h2>Title only</h2><a>anchor without href</a></li>
<li class="b_algo"><a href="https://example.com/x">x</a><p>  padded snippet  </p></li>
</ol>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	got := ParseResults(doc, 10)
	want := []SearchResult{
		{Title: NoTitle, Link: NoLink, Snippet: NoSnippet},
		{Title: "Title only", Link: NoLink, Snippet: NoSnippet},
		{Title: NoTitle, Link: "https://example.com/x", Snippet: "padded snippet"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Title != want[i].Title || got[i].Link != want[i].Link || got[i].Snippet != want[i].Snippet {
			t.Errorf("result %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestParseResults_IgnoresNonOrganicEntries(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(resultsPage(1)))
	got := ParseResults(doc, 10)
	if len(got) != 1 || got[0].Title != "Result 0" {
		t.Errorf("expected only the organic result, got %+v", got)
	}
}

func TestQuery_Defaults(t *testing.T) {
	q := NewQuery("sort a list", "python")
	if q.SpokenLanguage != "en" || q.MaxResults != 10 {
		t.Errorf("unexpected defaults %+v", q)
	}
	if q.Phrase() != "sort a list python" {
		t.Errorf("unexpected phrase %q", q.Phrase())
	}
	if (Query{Query: "only"}).Phrase() != "only" {
		t.Errorf("expected phrase without language to be the query")
	}
}
