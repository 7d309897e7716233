// Package langchain implements llm.Client on top of langchaingo providers.
package langchain

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/log"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogleAI  = "googleai"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGoogleAI}

// ClientConfig is the configuration of the langchaingo client.
type ClientConfig struct {
	Provider string
	Model    string
	// APIKey falls back to the provider's usual environment variable.
	APIKey  string
	BaseURL string
	Logger  log.Logger
}

func (c *ClientConfig) defaults() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "llm.Langchain", "provider": c.Provider})

	if c.APIKey == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGoogleAI:
			c.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	return nil
}

// Client is a llm.Client backed by a langchaingo model.
type Client struct {
	model    llms.Model
	provider string
	logger   log.Logger
}

// NewClient returns a client for the configured provider.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	model, err := newModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create %s model: %w", cfg.Provider, err)
	}

	return NewClientFromModel(model, cfg.Provider, cfg.Logger), nil
}

// NewClientFromModel wraps an already built langchaingo model.
func NewClientFromModel(model llms.Model, provider string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Noop
	}
	return &Client{model: model, provider: provider, logger: logger}
}

func newModel(ctx context.Context, cfg ClientConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key is required")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key is required")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)

	case ProviderOllama:
		serverURL := cfg.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		opts := []ollama.Option{ollama.WithServerURL(serverURL)}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		return ollama.New(opts...)

	case ProviderGoogleAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key is required")
		}
		opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		return googleai.New(ctx, opts...)
	}

	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// Complete satisfies llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == llm.RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		messages = append(messages, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		c.logger.Warningf("Completion failed: %s", err)
		return "", fmt.Errorf("%s: %w: %w", c.provider, llm.ErrUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices: %w", c.provider, llm.ErrUnavailable)
	}

	return resp.Choices[0].Content, nil
}
