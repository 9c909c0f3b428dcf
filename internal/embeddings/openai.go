package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	// APIKey authenticates against the endpoint.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the API endpoint for OpenAI-compatible services.
	// Empty uses the OpenAI default.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model. Default: "text-embedding-3-small".
	Model string `koanf:"model"`

	// Dimension is the expected vector length. Default: 1536, matching the
	// default model.
	Dimension int `koanf:"dimension"`
}

// ApplyDefaults sets default values for unset fields.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

// Validate validates the configuration.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider generates embeddings via the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(config OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	logger.Info("embedding provider initialized",
		zap.String("model", config.Model),
		zap.Int("dimension", config.Dimension),
	)

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Embed generates an embedding for one text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.config.Model),
		Input: []string{text},
	})
	if err != nil {
		p.logger.Warn("embedding request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: request error", ErrProviderFailed)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrProviderFailed)
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != p.config.Dimension {
		return nil, fmt.Errorf("%w: model returned dimension %d, configured %d",
			ErrProviderFailed, len(embedding), p.config.Dimension)
	}
	return embedding, nil
}

// Dimension returns the configured embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op; the provider holds no connections beyond the HTTP
// client's pool.
func (p *OpenAIProvider) Close() error {
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
