// Package storagetest holds the behaviour every storage.VectorStore backend
// must share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Dims is the embedding dimension used by the contract fixtures.
const Dims = 4

// Factory returns a fresh, empty store configured for Dims dimensions.
type Factory func(t *testing.T) storage.VectorStore

func memory(id int64, user, content string, emb ...float32) *storage.Memory {
	return &storage.Memory{
		ID:        id,
		Content:   content,
		Embedding: emb,
		Scope:     storage.Scope{UserID: storage.Some(user)},
		Metadata:  map[string]interface{}{"source": "test"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Hash:      storage.ContentHash(content),
	}
}

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateReplacesContent", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateMissingIsNoop", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("SearchOrdering", func(t *testing.T) { testSearchOrdering(t, newStore(t)) })
	t.Run("SearchScope", func(t *testing.T) { testSearchScope(t, newStore(t)) })
	t.Run("SearchAgentScope", func(t *testing.T) { testSearchAgentScope(t, newStore(t)) })
	t.Run("ListScopeAndLimit", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteByOwner", func(t *testing.T) { testDeleteByOwner(t, newStore(t)) })
	t.Run("ConcurrentAccess", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	m := memory(1, "alice", "likes coffee", 1, 0, 0, 0)
	m.Scope.AgentID = storage.Some("assistant")
	require.NoError(t, store.Insert(ctx, []*storage.Memory{m}))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "likes coffee", got.Content)
	assert.Equal(t, storage.Some("alice"), got.Scope.UserID)
	assert.Equal(t, storage.Some("assistant"), got.Scope.AgentID)
	assert.False(t, got.Scope.RunID.Valid)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.Equal(t, storage.ContentHash("likes coffee"), got.Hash)
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0}, got.Embedding, 1e-6)
	assert.Nil(t, got.UpdatedAt)
}

func testGetMissing(t *testing.T, store storage.VectorStore) {
	got, err := store.Get(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func testUpdate(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{memory(1, "alice", "likes coffee", 1, 0, 0, 0)}))

	now := time.Now().UTC().Truncate(time.Second)
	patch := memory(1, "alice", "likes coffee in the morning", 0, 1, 0, 0)
	patch.UpdatedAt = &now
	require.NoError(t, store.Update(ctx, []*storage.Memory{patch}))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "likes coffee in the morning", got.Content)
	assert.Equal(t, storage.ContentHash("likes coffee in the morning"), got.Hash)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, now.Equal(*got.UpdatedAt))
	assert.Equal(t, storage.Some("alice"), got.Scope.UserID)

	results, err := store.Search(ctx, []float32{0, 1, 0, 0}, storage.Scope{}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func testUpdateMissing(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{memory(1, "alice", "likes coffee", 1, 0, 0, 0)}))
	require.NoError(t, store.Update(ctx, []*storage.Memory{memory(2, "alice", "ghost", 0, 1, 0, 0)}))

	got, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := store.List(ctx, storage.Scope{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSearchOrdering(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{
		memory(1, "alice", "far", 0, 0, 1, 0),
		memory(2, "alice", "exact", 1, 0, 0, 0),
		memory(3, "alice", "close", 0.9, 0.1, 0, 0),
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some("alice")}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].Memory.ID)
	assert.Equal(t, int64(3), results[1].Memory.ID)
	assert.Equal(t, int64(1), results[2].Memory.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	limited, err := store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some("alice")}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func testSearchScope(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{
		memory(1, "alice", "alice fact", 1, 0, 0, 0),
		memory(2, "bob", "bob fact", 1, 0, 0, 0),
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some("alice")}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Memory.ID)

	results, err = store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some("carol")}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func testSearchAgentScope(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	a := memory(1, "alice", "with agent", 1, 0, 0, 0)
	a.Scope.AgentID = storage.Some("planner")
	b := memory(2, "alice", "without agent", 1, 0, 0, 0)
	require.NoError(t, store.Insert(ctx, []*storage.Memory{a, b}))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{AgentID: storage.Some("planner")}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Memory.ID)

	results, err = store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some("alice")}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func testList(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	var batch []*storage.Memory
	for i := int64(1); i <= 5; i++ {
		batch = append(batch, memory(i, "alice", fmt.Sprintf("fact %d", i), 1, float32(i), 0, 0))
	}
	batch = append(batch, memory(6, "bob", "bob fact", 1, 0, 0, 0))
	require.NoError(t, store.Insert(ctx, batch))

	all, err := store.List(ctx, storage.Scope{UserID: storage.Some("alice")}, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for _, m := range all {
		assert.Equal(t, storage.Some("alice"), m.Scope.UserID)
	}

	limited, err := store.List(ctx, storage.Scope{UserID: storage.Some("alice")}, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func testDelete(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{memory(1, "alice", "fact", 1, 0, 0, 0)}))
	require.NoError(t, store.Delete(ctx, 1))
	require.NoError(t, store.Delete(ctx, 1))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testDeleteByOwner(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, []*storage.Memory{
		memory(1, "alice", "a1", 1, 0, 0, 0),
		memory(2, "alice", "a2", 0, 1, 0, 0),
		memory(3, "bob", "b1", 1, 0, 0, 0),
	}))

	assert.ErrorIs(t, store.DeleteByOwner(ctx, storage.Scope{}), storage.ErrEmptyScope)
	require.NoError(t, store.DeleteByOwner(ctx, storage.Scope{UserID: storage.Some("alice")}))

	alice, err := store.List(ctx, storage.Scope{UserID: storage.Some("alice")}, 100)
	require.NoError(t, err)
	assert.Empty(t, alice)

	bob, err := store.List(ctx, storage.Scope{UserID: storage.Some("bob")}, 100)
	require.NoError(t, err)
	assert.Len(t, bob, 1)
}

func testConcurrent(t *testing.T, store storage.VectorStore) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id := int64(w*100 + i + 1)
				m := memory(id, fmt.Sprintf("user-%d", w), fmt.Sprintf("fact %d", id), 1, float32(i), 0, 0)
				assert.NoError(t, store.Insert(ctx, []*storage.Memory{m}))
				_, err := store.Search(ctx, []float32{1, 0, 0, 0}, storage.Scope{UserID: storage.Some(fmt.Sprintf("user-%d", w))}, 5)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 4; w++ {
		items, err := store.List(ctx, storage.Scope{UserID: storage.Some(fmt.Sprintf("user-%d", w))}, 100)
		require.NoError(t, err)
		assert.Len(t, items, 10)
	}
}
