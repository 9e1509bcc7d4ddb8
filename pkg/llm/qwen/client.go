// Package qwen provides an llm.Provider for Qwen models through the
// DashScope OpenAI-compatible endpoint.
package qwen

import (
	"github.com/memnet/memnet-go/pkg/llm/openai"
)

// DefaultBaseURL is the DashScope compatible-mode address.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// Client is a Qwen LLM client.
type Client struct {
	*openai.Client
}

// Config is the configuration for Qwen.
type Config struct {
	// APIKey is the DashScope API key.
	APIKey string

	// Model defaults to "qwen-plus".
	Model string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
}

// NewClient creates a new Qwen LLM client.
func NewClient(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "qwen-plus"
	}
	c, err := openai.NewClient(&openai.Config{APIKey: cfg.APIKey, Model: model, BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}
