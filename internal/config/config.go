// Package config provides configuration loading for rememberd.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/rememberd/internal/feedback"
	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

// Config is the root configuration for the daemon.
type Config struct {
	Storage       StorageConfig       `koanf:"storage"`
	Vector        VectorConfig        `koanf:"vector"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Feedback      FeedbackConfig      `koanf:"feedback"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Synthesis     SynthesisConfig     `koanf:"synthesis"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// Path is the data directory. Default: ~/.local/share/rememberd
	Path string `koanf:"path"`
}

// VectorConfig configures the embedded vector index.
type VectorConfig struct {
	// Path is the vector store directory.
	// Default: ~/.local/share/rememberd/vectors
	Path string `koanf:"path"`

	// Collection is the collection name. Default: rememberd_items.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression of stored vectors.
	Compress bool `koanf:"compress"`
}

// RetrievalConfig tunes hybrid retrieval and score fusion.
type RetrievalConfig struct {
	// TopK is the default candidate count. Default: 5.
	TopK int `koanf:"top_k"`

	// Weights are the per-signal fusion weights.
	// Defaults: semantic 0.6, lexical 0.25, recency 0.15.
	Weights memory.Weights `koanf:"weights"`

	// DecayTau is the recency decay constant. Default: 24h.
	DecayTau Duration `koanf:"decay_tau"`
}

// FeedbackConfig tunes the behavior-feedback tracker.
type FeedbackConfig struct {
	// AbandonThreshold is the pending window. Default: 10m.
	AbandonThreshold Duration `koanf:"abandon_threshold"`

	// CorrectionMarkers overrides the correction lexicon.
	CorrectionMarkers []string `koanf:"correction_markers"`

	// AckMarkers overrides the positive-acknowledgement lexicon.
	AckMarkers []string `koanf:"ack_markers"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model. Default: text-embedding-3-small.
	Model string `koanf:"model"`

	// Dimension is the embedding length. Default: 1536.
	Dimension int `koanf:"dimension"`
}

// SynthesisConfig configures the synthesis provider.
type SynthesisConfig struct {
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`

	// ModelFast serves the default path. ModelDeep serves "deep" requests.
	ModelFast string `koanf:"model_fast"`
	ModelDeep string `koanf:"model_deep"`

	Temperature float32 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	// ServiceName identifies this service in traces. Default: rememberd.
	ServiceName string `koanf:"service_name"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "json" or "console". Default: json.
	LogFormat string `koanf:"log_format"`
}

// ToFeedbackConfig converts to the tracker's config type.
func (c FeedbackConfig) ToFeedbackConfig() feedback.Config {
	return feedback.Config{
		AbandonThreshold:  c.AbandonThreshold.Duration(),
		CorrectionMarkers: c.CorrectionMarkers,
		AckMarkers:        c.AckMarkers,
	}
}

// Validate checks cross-field constraints. Field-level defaults are applied
// by the owning packages; only constraints the loader must catch early live
// here.
func (c *Config) Validate() error {
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings.dimension cannot be negative")
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k cannot be negative")
	}
	w := c.Retrieval.Weights
	if w.Semantic < 0 || w.Lexical < 0 || w.Recency < 0 {
		return fmt.Errorf("retrieval.weights must be non-negative")
	}
	switch c.Observability.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.log_level must be one of debug, info, warn, error")
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("observability.log_format must be json or console")
	}
	return nil
}
