package store

import (
	"encoding/json"
	"sort"
	"strings"
)

// Content is the schema-less payload of a memory. Producing collaborators
// attach whatever structure fits the memory type; everything in palace goes
// through the typed accessors below instead of raw key lookups.
type Content map[string]interface{}

func (c Content) str(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (c Content) num(key string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	switch v := c[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Title returns the content's title field, if any.
func (c Content) Title() string {
	return c.str("title")
}

// Summary returns the content's summary field, if any.
func (c Content) Summary() string {
	return c.str("summary")
}

// Category returns the content's category, defaulting to "general".
// Used to group pattern memories for compression.
func (c Content) Category() string {
	if v := c.str("category"); v != "" {
		return v
	}
	return "general"
}

// Confidence returns the content's confidence in [0,1], or 0 when absent.
func (c Content) Confidence() float64 {
	v, ok := c.num("confidence")
	if !ok {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Topics returns the content's topic list. Accepts either a "topics" string
// list or a single "topic" string.
func (c Content) Topics() []string {
	var topics []string
	if c == nil {
		return nil
	}
	if raw, ok := c["topics"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				topics = append(topics, strings.TrimSpace(s))
			}
		}
	}
	if t := c.str("topic"); t != "" {
		topics = append(topics, t)
	}
	return dedupeStrings(topics)
}

// StringValues returns every string value in the content, top-level keys in
// sorted order. Feeds summarization and highlight extraction.
func (c Content) StringValues() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var values []string
	for _, k := range keys {
		if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
			values = append(values, strings.TrimSpace(s))
		}
	}
	return values
}

// Serialized returns the canonical JSON encoding of the content. Map keys are
// emitted in sorted order, so equal contents serialize identically.
func (c Content) Serialized() string {
	if c == nil {
		return "{}"
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
