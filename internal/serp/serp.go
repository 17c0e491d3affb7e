package serp

import "context"

// Placeholders for result fields whose element is missing from the entry.
const (
	NoTitle   = "No Title"
	NoLink    = "No Link"
	NoSnippet = "No Snippet"
)

const (
	DefaultSpokenLanguage = "en"
	DefaultMaxResults     = 10
)

// Query holds the parameters of one search. Build it with NewQuery so the
// defaults are applied.
type Query struct {
	Query               string
	ProgrammingLanguage string
	SpokenLanguage      string
	MaxResults          int
}

// NewQuery returns a Query for text and language with the default locale and
// result count.
func NewQuery(text, language string) Query {
	return Query{
		Query:               text,
		ProgrammingLanguage: language,
		SpokenLanguage:      DefaultSpokenLanguage,
		MaxResults:          DefaultMaxResults,
	}
}

// Phrase is the text sent to the search engine.
func (q Query) Phrase() string {
	if q.ProgrammingLanguage == "" {
		return q.Query
	}
	return q.Query + " " + q.ProgrammingLanguage
}

// SearchResult is one search hit. CodeSnippets is attached by the pipeline
// after extraction.
type SearchResult struct {
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Snippet      string   `json:"snippet"`
	CodeSnippets []string `json:"code_snippets"`
}

// Provider abstracts a search engine that returns result entries for a
// query. Implementations never fail: any upstream problem yields an empty
// slice, and the result count never exceeds q.MaxResults.
type Provider interface {
	Search(ctx context.Context, q Query) []SearchResult
}
