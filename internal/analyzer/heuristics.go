package analyzer

import (
	"sort"
	"strings"
)

// builtinKeywords are substrings whose presence marks a block as code in the
// given language. Order matters: the first keyword found in a block decides
// the match.
var builtinKeywords = map[string][]string{
	"python": {"print", "x=", "str(", "def ", "import ", "class "},
	"java":   {"System.out.print", "int ", "String ", "class ", "public ", "void "},
}

// Heuristics is an immutable lookup table from language identifier to its
// ordered keyword list. Identifiers are case-insensitive. The zero value
// knows no languages.
type Heuristics struct {
	table map[string][]string
}

// NewHeuristics builds a table from the given map. Keys are lower-cased and
// trimmed, lists are copied.
func NewHeuristics(table map[string][]string) Heuristics {
	h := Heuristics{table: make(map[string][]string, len(table))}
	for lang, keywords := range table {
		h.table[Canonical(lang)] = append([]string(nil), keywords...)
	}
	return h
}

// DefaultHeuristics returns the built-in table.
func DefaultHeuristics() Heuristics {
	return NewHeuristics(builtinKeywords)
}

// With returns a new table where each language in extra replaces any
// existing entry. The receiver is not modified.
func (h Heuristics) With(extra map[string][]string) Heuristics {
	merged := make(map[string][]string, len(h.table)+len(extra))
	for lang, keywords := range h.table {
		merged[lang] = keywords
	}
	for lang, keywords := range extra {
		merged[Canonical(lang)] = keywords
	}
	return NewHeuristics(merged)
}

// Keywords returns the keywords for language, or nil if the language is
// unknown. The returned slice is a copy.
func (h Heuristics) Keywords(language string) []string {
	keywords, ok := h.table[Canonical(language)]
	if !ok {
		return nil
	}
	return append([]string(nil), keywords...)
}

// Languages lists the known language identifiers in sorted order.
func (h Heuristics) Languages() []string {
	langs := make([]string, 0, len(h.table))
	for lang := range h.table {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Canonical returns the table key for a language name: trimmed and lower
// case.
func Canonical(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}
