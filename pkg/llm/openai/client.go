// Package openai provides an llm.Provider for the OpenAI chat completions
// API and OpenAI-compatible servers.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memnet/memnet-go/pkg/llm"
)

// Client is an OpenAI LLM client.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI LLM.
type Config struct {
	// APIKey is required.
	APIKey string

	// Model defaults to "gpt-4o-mini".
	Model string

	// BaseURL overrides the API address for compatible servers.
	BaseURL string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai llm: API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages generates text using message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}
	if options.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
