package core

import (
	"context"
	"sync"
)

// AsyncClient runs client operations in goroutines and delivers each result
// on a buffered channel that receives exactly one value.
//
// Example:
//
//	ac := core.NewAsyncClient(client)
//	defer ac.Close()
//
//	addCh := ac.AddAsync(ctx, messages, core.WithUserID("user_001"))
//	res := <-addCh
//	if res.Err != nil {
//	    // handle
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// Result carries the outcome of one asynchronous call.
type Result[T any] struct {
	Value T
	Err   error
}

// NewAsyncClient wraps client. Closing the AsyncClient closes client.
func NewAsyncClient(client *Client) *AsyncClient {
	return &AsyncClient{Client: client}
}

// NewAsyncClientFromConfig builds a client from cfg and wraps it.
func NewAsyncClientFromConfig(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewAsyncClient(client), nil
}

func run[T any](ac *AsyncClient, fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	ac.wg.Add(1)
	go func() {
		defer ac.wg.Done()
		defer close(ch)
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// AddAsync runs Add in the background.
func (ac *AsyncClient) AddAsync(ctx context.Context, messages []Message, opts ...AddOption) <-chan Result[*AddResult] {
	return run(ac, func() (*AddResult, error) {
		return ac.Add(ctx, messages, opts...)
	})
}

// SearchAsync runs Search in the background.
func (ac *AsyncClient) SearchAsync(ctx context.Context, query string, opts ...SearchOption) <-chan Result[[]*SearchResult] {
	return run(ac, func() ([]*SearchResult, error) {
		return ac.Search(ctx, query, opts...)
	})
}

// GetAsync runs Get in the background. A missing memory yields a nil Value.
func (ac *AsyncClient) GetAsync(ctx context.Context, id int64) <-chan Result[*Memory] {
	return run(ac, func() (*Memory, error) {
		return ac.Get(ctx, id)
	})
}

// GetAllAsync runs GetAll in the background.
func (ac *AsyncClient) GetAllAsync(ctx context.Context, opts ...GetAllOption) <-chan Result[[]*Memory] {
	return run(ac, func() ([]*Memory, error) {
		return ac.GetAll(ctx, opts...)
	})
}

// UpdateAsync runs Update in the background.
func (ac *AsyncClient) UpdateAsync(ctx context.Context, id int64, content string) <-chan Result[bool] {
	return run(ac, func() (bool, error) {
		return ac.Update(ctx, id, content)
	})
}

// DeleteAsync runs Delete in the background.
func (ac *AsyncClient) DeleteAsync(ctx context.Context, id int64) <-chan Result[struct{}] {
	return run(ac, func() (struct{}, error) {
		return struct{}{}, ac.Delete(ctx, id)
	})
}

// DeleteAllAsync runs DeleteAll in the background.
func (ac *AsyncClient) DeleteAllAsync(ctx context.Context, opts ...DeleteAllOption) <-chan Result[struct{}] {
	return run(ac, func() (struct{}, error) {
		return struct{}{}, ac.DeleteAll(ctx, opts...)
	})
}

// Wait blocks until every started operation has finished.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close waits for outstanding operations and closes the client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}
