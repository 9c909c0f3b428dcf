// Package embeddings provides embedding generation behind a small provider
// interface so the retrieval core stays independent of any one vendor.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderFailed wraps upstream API failures with a generic reason.
	// Raw provider error bodies never propagate past this package.
	ErrProviderFailed = errors.New("embedding provider failed")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates an embedding for a single text. The returned vector
	// length always equals Dimension().
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
