// Package deepseek provides an llm.Provider for DeepSeek, which serves an
// OpenAI-compatible API.
package deepseek

import (
	"github.com/memnet/memnet-go/pkg/llm/openai"
)

// DefaultBaseURL is the DeepSeek API address.
const DefaultBaseURL = "https://api.deepseek.com"

// Client is a DeepSeek LLM client.
type Client struct {
	*openai.Client
}

// Config is the configuration for DeepSeek.
type Config struct {
	APIKey string

	// Model defaults to "deepseek-chat".
	Model string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
}

// NewClient creates a new DeepSeek LLM client.
func NewClient(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "deepseek-chat"
	}
	c, err := openai.NewClient(&openai.Config{APIKey: cfg.APIKey, Model: model, BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}
