// Package qwen provides an embedder.Provider using the Alibaba Cloud
// DashScope text embedding API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client implements embedder.Provider over the DashScope HTTP API.
type Client struct {
	client     *http.Client
	apiKey     string
	model      string
	baseURL    string
	dimensions int
}

// Config contains configuration for creating a Qwen embedder client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name to use (default: "text-embedding-v4").
	Model string

	// BaseURL is the API base URL (default: DashScope official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 1536).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new Qwen embedder client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("qwen embedder: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-v4"
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client:     client,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text string into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type embeddingResponse struct {
	Output struct {
		Embeddings []struct {
			TextIndex int       `json:"text_index"`
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
}

// EmbedBatch converts multiple texts into embeddings in a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"texts": texts,
		},
		"parameters": map[string]interface{}{
			"dimension": c.dimensions,
			"text_type": "document",
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("qwen embeddings: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("qwen embeddings: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen embeddings: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qwen embeddings: status %d: %s", resp.StatusCode, string(body))
	}

	var response embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("qwen embeddings: decode response: %w", err)
	}
	if len(response.Output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("qwen embeddings: got %d results, expected %d", len(response.Output.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, emb := range response.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			return nil, fmt.Errorf("qwen embeddings: text index %d out of range", emb.TextIndex)
		}
		embeddings[emb.TextIndex] = emb.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the dimension of vectors produced by this provider.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
