// Package openai provides an embedder.Provider backed by the OpenAI
// embeddings API or any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

// Client is an OpenAI embedding client.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedder.
type Config struct {
	// APIKey is required.
	APIKey string

	// Model defaults to text-embedding-3-small.
	Model string

	// BaseURL overrides the API address for compatible servers.
	BaseURL string

	// Dimensions defaults to 1536. For text-embedding-3 models it is also
	// sent to the API so the server shortens vectors to match.
	Dimensions int
}

// NewClient creates a new OpenAI embedder client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts to vectors in one request. The response is
// reordered by index so output order always matches texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	}
	if c.model != openai.AdaEmbeddingV2 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d results, expected %d", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: result index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
