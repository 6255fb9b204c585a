package search

import (
	"strings"
	"unicode/utf8"

	"github.com/palace-sh/palace/pkg/store"
)

const (
	highlightWindow = 30
	maxHighlights   = 3
)

// highlights extracts short context windows around the first occurrence of
// the full phrase and of each query term in the serialized content.
func highlights(rec *store.MemoryRecord, query string, terms []string) []string {
	serialized := rec.Content.Serialized()
	lowered := strings.ToLower(serialized)

	var snippets []string
	seen := make(map[string]bool)

	add := func(needle string) {
		if len(snippets) >= maxHighlights || needle == "" {
			return
		}
		idx := strings.Index(lowered, needle)
		if idx < 0 {
			return
		}
		snippet := window(serialized, idx, len(needle))
		if snippet == "" || seen[snippet] {
			return
		}
		seen[snippet] = true
		snippets = append(snippets, snippet)
	}

	add(strings.ToLower(query))
	for _, term := range terms {
		add(term)
	}

	return snippets
}

// window returns up to highlightWindow bytes of context on each side of the
// match, widened to rune boundaries, with ellipses where the text is
// truncated.
func window(text string, idx, matchLen int) string {
	start := idx - highlightWindow
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}

	end := idx + matchLen + highlightWindow
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	prefix, suffix := "", ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(text) {
		suffix = "..."
	}
	return prefix + text[start:end] + suffix
}
