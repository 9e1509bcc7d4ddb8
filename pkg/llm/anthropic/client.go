// Package anthropic provides an llm.Provider for Anthropic Claude models.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/memnet/memnet-go/pkg/llm"
)

// Client is an Anthropic LLM client.
type Client struct {
	client anthropic.Client
	model  string
}

// Config is the configuration for Anthropic.
type Config struct {
	// APIKey is required.
	APIKey string

	// Model defaults to "claude-3-5-haiku-latest".
	Model string

	// BaseURL overrides the API address.
	BaseURL string
}

// NewClient creates a new Anthropic LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic llm: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages sends the conversation to the Messages API. System
// messages are lifted into the system prompt.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)
	system, rest := llm.SplitSystem(messages)
	if options.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(options.MaxTokens),
		Temperature: anthropic.Float(options.Temperature),
		Messages:    make([]anthropic.MessageParam, 0, len(rest)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(options.Stop) > 0 {
		params.StopSequences = options.Stop
	}
	for _, m := range rest {
		switch m.Role {
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic messages: no text content returned")
	}
	return out.String(), nil
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
