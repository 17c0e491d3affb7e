package analyzer

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockSelector matches the elements treated as candidate code containers:
// inline code, preformatted text and generic containers.
const BlockSelector = "code, pre, div"

// MatchBlocks returns the trimmed text of every content block in doc whose
// text contains one of keywords, in document order. This is a plain
// substring test. Each block is appended at most once no matter how many
// keywords it contains; nested blocks are tested independently.
func MatchBlocks(doc *goquery.Document, keywords []string) []string {
	matches := []string{}
	if doc == nil || len(keywords) == 0 {
		return matches
	}

	doc.Find(BlockSelector).Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if matchKeyword(text, keywords) >= 0 {
			matches = append(matches, strings.TrimSpace(text))
		}
	})
	return matches
}

// MatchHTML parses r as HTML and applies MatchBlocks.
func MatchHTML(r io.Reader, keywords []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return []string{}, fmt.Errorf("parse html: %w", err)
	}
	return MatchBlocks(doc, keywords), nil
}

// matchKeyword returns the index of the first keyword contained in text, or
// -1. An empty keyword matches any text.
func matchKeyword(text string, keywords []string) int {
	for i, kw := range keywords {
		if strings.Contains(text, kw) {
			return i
		}
	}
	return -1
}
