// Package ollama provides an llm.Provider backed by a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/memnet/memnet-go/pkg/llm"
)

// Client is an Ollama chat client.
type Client struct {
	api   *api.Client
	model string
}

// Config is the configuration for Ollama.
type Config struct {
	// BaseURL defaults to OLLAMA_HOST or http://localhost:11434.
	BaseURL string

	// Model defaults to "llama3.1".
	Model string

	HTTPClient *http.Client
}

// NewClient creates a new Ollama LLM client.
func NewClient(cfg *Config) (*Client, error) {
	var client *api.Client
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama llm: invalid base url: %w", err)
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(base, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama llm: %w", err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	return &Client{api: client, model: model}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages runs a non-streaming chat request.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chat := make([]api.Message, len(messages))
	for i, m := range messages {
		chat[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: chat,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": options.Temperature,
			"top_p":       options.TopP,
			"num_predict": options.MaxTokens,
		},
	}
	if len(options.Stop) > 0 {
		req.Options["stop"] = options.Stop
	}
	if options.JSONMode {
		req.Format = []byte(`"json"`)
	}

	var out strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return out.String(), nil
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
