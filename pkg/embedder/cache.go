package embedder

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Cached wraps a Provider with an in-process cache keyed by text. Concurrent
// requests for the same text share one upstream call.
type Cached struct {
	next  Provider
	cache *ristretto.Cache
	group singleflight.Group

	// parallelism bounds concurrent upstream calls made by EmbedBatch.
	parallelism int
}

// NewCached returns a caching decorator holding up to maxEntries vectors.
func NewCached(next Provider, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder cache: %w", err)
	}
	return &Cached{next: next, cache: cache, parallelism: 4}, nil
}

// Embed returns the cached vector for text or asks the wrapped provider.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return copyVector(v.([]float32)), nil
	}

	// The shared call outlives any single caller; each waiter stops on its
	// own context.
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (interface{}, error) {
		vec, err := c.next.Embed(flight, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, copyVector(vec), 1)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyVector(res.Val.([]float32)), nil
	}
}

// EmbedBatch serves hits from the cache and embeds the misses with bounded
// parallelism. Output order matches texts.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := c.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the wrapped provider's dimension.
func (c *Cached) Dimensions() int {
	return c.next.Dimensions()
}

// Close closes the cache and the wrapped provider.
func (c *Cached) Close() error {
	c.cache.Close()
	return c.next.Close()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
