package synthesis

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

// OpenAIConfig configures the OpenAI-compatible synthesis provider.
type OpenAIConfig struct {
	// APIKey authenticates against the endpoint.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the API endpoint. Point this at an
	// OpenAI-compatible service such as Groq to use its models.
	BaseURL string `koanf:"base_url"`

	// ModelFast handles default-style synthesis.
	// Default: "llama-3.1-8b-instant".
	ModelFast string `koanf:"model_fast"`

	// ModelDeep handles the "deep" style. Default: "llama-3.3-70b-versatile".
	ModelDeep string `koanf:"model_deep"`

	// Temperature for completions. Default: 0.3.
	Temperature float32 `koanf:"temperature"`

	// MaxTokens is the default completion cap. Default: 1500.
	MaxTokens int `koanf:"max_tokens"`
}

// ApplyDefaults sets default values for unset fields.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.ModelFast == "" {
		c.ModelFast = "llama-3.1-8b-instant"
	}
	if c.ModelDeep == "" {
		c.ModelDeep = "llama-3.3-70b-versatile"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1500
	}
}

// Validate validates the configuration.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider synthesizes answers through a chat-completion API.
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

	logger.Info("synthesis provider initialized",
		zap.String("model_fast", config.ModelFast),
		zap.String("model_deep", config.ModelDeep),
	)

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// modelFor selects the model for a style: "deep" routes to the deep model,
// everything else to the fast one.
func (p *OpenAIProvider) modelFor(style string) string {
	if strings.EqualFold(style, StyleDeep) {
		return p.config.ModelDeep
	}
	return p.config.ModelFast
}

// Synthesize produces an answer from the query and retrieved items.
func (p *OpenAIProvider) Synthesize(ctx context.Context, query string, items []memory.Item, opts Options) (Result, error) {
	model := p.modelFor(opts.Style)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(opts.Style)},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(query, items)},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		p.logger.Warn("synthesis request failed",
			zap.String("model", model),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("%w: request error", ErrProviderFailed)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty choices", ErrProviderFailed)
	}

	result := Result{
		Text:      resp.Choices[0].Message.Content,
		ModelUsed: resp.Model,
	}
	if result.ModelUsed == "" {
		result.ModelUsed = model
	}
	if resp.Usage.TotalTokens > 0 {
		tokens := resp.Usage.TotalTokens
		result.TokensUsed = &tokens
	}

	p.logger.Debug("synthesized response",
		zap.String("model", result.ModelUsed),
		zap.Int("items", len(items)),
	)
	return result, nil
}

var _ Provider = (*OpenAIProvider)(nil)
