package guardrail

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ReverseMap records replacement → original during anonymization so partial
// extractions of a replacement (a bare fake IPv4, a fake phone number, a fake
// name) can still be reversed when the model emits them without the wrapping
// envelope. It is shared across requests in the same process and safe for
// concurrent use.
type ReverseMap struct {
	cache *lru.Cache[string, string]
}

// NewReverseMap returns a bounded reverse map. Eviction only degrades the
// partial-extraction repair path; full envelopes remain reversible through the
// token codec regardless.
func NewReverseMap(capacity int) (*ReverseMap, error) {
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &ReverseMap{cache: cache}, nil
}

// Put records one replacement and its original.
func (m *ReverseMap) Put(replacement, original string) {
	if replacement == "" || replacement == original {
		return
	}
	m.cache.Add(replacement, original)
}

// Get returns the original for a replacement.
func (m *ReverseMap) Get(replacement string) (string, bool) {
	return m.cache.Get(replacement)
}

// Keys snapshots the current replacement keys.
func (m *ReverseMap) Keys() []string {
	return m.cache.Keys()
}

// Len returns the number of recorded replacements.
func (m *ReverseMap) Len() int {
	return m.cache.Len()
}

// MaxOverlap returns the longest k in [3, len(key)-1] such that the tail of
// text matches a proper prefix of some recorded replacement. It bounds how
// much buffered stream output must be held back because a replacement may
// still be completing across event boundaries.
func (m *ReverseMap) MaxOverlap(text string) int {
	max := 0
	for _, key := range m.cache.Keys() {
		limit := len(key) - 1
		if limit > len(text) {
			limit = len(text)
		}
		for k := limit; k >= 3 && k > max; k-- {
			if text[len(text)-k:] == key[:k] {
				max = k
				break
			}
		}
	}
	return max
}
