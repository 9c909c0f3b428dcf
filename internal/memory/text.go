package memory

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// TextResult is one lexical hit. Score is in [0,1]; 1.0 means every query
// term appears in the item.
type TextResult struct {
	ID    string
	Score float64
}

// TextIndex is an in-memory inverted index over item text. Scoring is the
// fraction of distinct query terms present in the item, which is monotonic in
// matched-term overlap and deterministic for identical inputs. Ties are
// broken by insertion order (earlier wins).
//
// The index is rebuilt from the item store at startup; it is not persisted
// on its own.
type TextIndex struct {
	mu     sync.RWMutex
	terms  map[string]map[string]int // term -> item id -> term frequency
	docs   map[string]int            // item id -> insertion sequence
	next   int
	logger *zap.Logger
}

// NewTextIndex creates an empty text index.
func NewTextIndex(logger *zap.Logger) *TextIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextIndex{
		terms:  make(map[string]map[string]int),
		docs:   make(map[string]int),
		logger: logger,
	}
}

// Insert indexes the given text under id. Re-inserting an existing id
// replaces its terms.
func (t *TextIndex) Insert(id, text string) error {
	if id == "" {
		return ErrEmptyID
	}

	tokens := tokenize(text)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.docs[id]; exists {
		t.removeLocked(id)
	} else {
		t.docs[id] = t.next
		t.next++
	}

	for _, tok := range tokens {
		postings, ok := t.terms[tok]
		if !ok {
			postings = make(map[string]int)
			t.terms[tok] = postings
		}
		postings[id]++
	}
	return nil
}

// Remove deletes an item from the index. Missing ids are not an error.
func (t *TextIndex) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
	delete(t.docs, id)
}

// removeLocked clears an item's postings but keeps its sequence number so a
// re-insert preserves the original ordering position.
func (t *TextIndex) removeLocked(id string) {
	for term, postings := range t.terms {
		delete(postings, id)
		if len(postings) == 0 {
			delete(t.terms, term)
		}
	}
}

// Count returns the number of indexed items.
func (t *TextIndex) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

// Query returns up to k items ranked by term overlap with the query text,
// score descending. An empty index or a query with no usable terms yields an
// empty result.
func (t *TextIndex) Query(text string, k int) []TextResult {
	queryTokens := uniqueTokens(tokenize(text))
	if len(queryTokens) == 0 || k <= 0 {
		return []TextResult{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	matched := make(map[string]int) // item id -> distinct query terms matched
	for _, tok := range queryTokens {
		for id := range t.terms[tok] {
			matched[id]++
		}
	}
	if len(matched) == 0 {
		return []TextResult{}
	}

	results := make([]TextResult, 0, len(matched))
	for id, n := range matched {
		results = append(results, TextResult{
			ID:    id,
			Score: float64(n) / float64(len(queryTokens)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return t.docs[results[i].ID] < t.docs[results[j].ID]
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// tokenize splits text into lowercased alphanumeric terms.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// uniqueTokens deduplicates tokens preserving first-seen order.
func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
