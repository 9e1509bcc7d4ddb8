package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/storage"
	"github.com/memnet/memnet-go/pkg/storage/inmemory"
	"github.com/memnet/memnet-go/pkg/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorStore {
		s := inmemory.New(&inmemory.Config{Dimensions: storagetest.Dims})
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_DimensionMismatch(t *testing.T) {
	s := inmemory.New(&inmemory.Config{Dimensions: 3})
	err := s.Insert(context.Background(), []*storage.Memory{{ID: 1, Embedding: []float32{1, 2}}})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New(nil)
	m := &storage.Memory{ID: 1, Content: "original", Embedding: []float32{1, 0}}
	require.NoError(t, s.Insert(ctx, []*storage.Memory{m}))

	m.Content = "mutated by caller"
	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)

	got.Embedding[0] = 42
	again, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), again.Embedding[0])
}

func TestStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New(nil)
	require.NoError(t, s.Insert(ctx, []*storage.Memory{{ID: 1, Embedding: []float32{1}}}))
	assert.Error(t, s.Insert(ctx, []*storage.Memory{{ID: 1, Embedding: []float32{1}}}))
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New(nil)
	require.NoError(t, s.Close())
	_, err := s.Get(ctx, 1)
	assert.Error(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := inmemory.New(nil)
	_, err := s.Search(ctx, []float32{1}, storage.Scope{}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
