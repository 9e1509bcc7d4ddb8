// Package ollama provides an embedder.Provider backed by a local Ollama
// server's embed endpoint.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Client implements embedder.Provider.
type Client struct {
	api        *api.Client
	model      string
	dimensions int
}

// Config contains configuration for the Ollama embedder.
type Config struct {
	// BaseURL defaults to the OLLAMA_HOST environment or localhost:11434.
	BaseURL string

	// Model defaults to nomic-embed-text.
	Model string

	// Dimensions defaults to 768, the size of nomic-embed-text vectors.
	Dimensions int

	HTTPClient *http.Client
}

// NewClient creates a new Ollama embedder client.
func NewClient(cfg *Config) (*Client, error) {
	var (
		client *api.Client
		err    error
	)
	if cfg.BaseURL != "" {
		base, perr := url.Parse(cfg.BaseURL)
		if perr != nil {
			return nil, fmt.Errorf("ollama embedder: invalid base url: %w", perr)
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(base, httpClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: %w", err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}
	return &Client{api: client, model: model, dimensions: dimensions}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d results, expected %d", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Dimensions returns the configured vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
