package memory

import (
	"errors"
	"time"
)

// Sentinel errors for index operations.
var (
	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the configured index dimension. Vectors are never truncated or
	// padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyID indicates a missing item identifier.
	ErrEmptyID = errors.New("item id cannot be empty")
)

// Item is a unit of indexed memory content. Items are immutable after
// creation except for Tags, which change only through an explicit update,
// never as a side effect of retrieval.
type Item struct {
	// ID is the unique identifier, assigned at creation.
	ID string `json:"id"`

	// Text is the original content.
	Text string `json:"text"`

	// Embedding is the fixed-length vector for this item.
	Embedding []float32 `json:"embedding,omitempty"`

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Tags are caller-supplied labels used for attribute filtering.
	Tags []string `json:"tags,omitempty"`
}

// Candidate is a scored item produced transiently during one retrieval call.
// Candidates are never persisted.
type Candidate struct {
	ItemID        string    `json:"item_id"`
	SemanticScore float64   `json:"semantic_score"`
	LexicalScore  float64   `json:"lexical_score"`
	RecencyScore  float64   `json:"recency_score"`
	CombinedScore float64   `json:"combined_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// Weights configures the relative contribution of each retrieval signal.
// Weights need not sum to 1.
type Weights struct {
	Semantic float64 `json:"semantic" koanf:"semantic"`
	Lexical  float64 `json:"lexical" koanf:"lexical"`
	Recency  float64 `json:"recency" koanf:"recency"`
}

// DefaultWeights returns the default signal weights.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Lexical: 0.25, Recency: 0.15}
}

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w.Semantic == 0 && w.Lexical == 0 && w.Recency == 0
}
