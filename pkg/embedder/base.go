// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy, enabling text-to-vector conversion for similarity search.
package embedder

import (
	"context"
	"fmt"
)

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, Qwen, Ollama) must implement this
// interface. Implementations must honour context cancellation and must not
// retry internally.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts into embeddings, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimension of vectors produced by this provider.
	Dimensions() int

	// Close releases resources held by the provider.
	Close() error
}

// CheckDimensions returns an error when vec does not have the expected
// number of dimensions. A non-positive want accepts any length.
func CheckDimensions(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(vec), want)
	}
	return nil
}
