package core

import (
	"context"
	"fmt"
)

// StreamBatch is one chunk of a streamed result set.
type StreamBatch[T any] struct {
	Items []T

	// BatchIndex is the zero-based position of this batch.
	BatchIndex int

	// IsLastBatch is set on the final batch of a successful stream.
	IsLastBatch bool

	// Error ends the stream when set.
	Error error
}

// SearchStream runs Search and delivers the results in batches of
// batchSize, best first. The channel is closed after the last batch, after
// an error, or when ctx is cancelled.
func (c *Client) SearchStream(ctx context.Context, query string, batchSize int, opts ...SearchOption) <-chan StreamBatch[*SearchResult] {
	return stream(ctx, batchSize, func() ([]*SearchResult, error) {
		return c.Search(ctx, query, opts...)
	})
}

// GetAllStream runs GetAll and delivers the memories in batches of
// batchSize.
func (c *Client) GetAllStream(ctx context.Context, batchSize int, opts ...GetAllOption) <-chan StreamBatch[*Memory] {
	return stream(ctx, batchSize, func() ([]*Memory, error) {
		return c.GetAll(ctx, opts...)
	})
}

func stream[T any](ctx context.Context, batchSize int, fetch func() ([]T, error)) <-chan StreamBatch[T] {
	ch := make(chan StreamBatch[T], 1)

	go func() {
		defer close(ch)

		if batchSize <= 0 {
			ch <- StreamBatch[T]{Error: NewMemoryError("Stream", fmt.Errorf("%w: batch size must be positive", ErrInvalidInput))}
			return
		}
		items, err := fetch()
		if err != nil {
			ch <- StreamBatch[T]{Error: err}
			return
		}
		if len(items) == 0 {
			ch <- StreamBatch[T]{Items: []T{}, IsLastBatch: true}
			return
		}

		for i, index := 0, 0; i < len(items); i, index = i+batchSize, index+1 {
			end := i + batchSize
			if end > len(items) {
				end = len(items)
			}
			batch := StreamBatch[T]{
				Items:       items[i:end],
				BatchIndex:  index,
				IsLastBatch: end == len(items),
			}
			select {
			case ch <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
