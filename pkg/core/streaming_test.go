package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

func TestGetAllStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.client.Add(ctx, userMessages("a", "b", "c", "d", "e"), memnet.WithInfer(false))
	require.NoError(t, err)

	var sizes []int
	var last bool
	for batch := range f.client.GetAllStream(ctx, 2) {
		require.NoError(t, batch.Error)
		assert.Equal(t, len(sizes), batch.BatchIndex)
		sizes = append(sizes, len(batch.Items))
		last = batch.IsLastBatch
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.True(t, last)
}

func TestSearchStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.embedder.set("best", 1, 0)
	f.embedder.set("good", 0.8, 0.6)
	f.embedder.set("query", 1, 0)
	_, err := f.client.Add(ctx, userMessages("good", "best"), memnet.WithInfer(false))
	require.NoError(t, err)

	var contents []string
	for batch := range f.client.SearchStream(ctx, "query", 1) {
		require.NoError(t, batch.Error)
		for _, r := range batch.Items {
			contents = append(contents, r.Memory.Content)
		}
	}
	assert.Equal(t, []string{"best", "good"}, contents)
}

func TestStream_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := <-f.client.GetAllStream(ctx, 0)
	assert.ErrorIs(t, batch.Error, memnet.ErrInvalidInput)

	batch = <-f.client.GetAllStream(ctx, 3)
	require.NoError(t, batch.Error)
	assert.Empty(t, batch.Items)
	assert.True(t, batch.IsLastBatch)

	res := <-f.client.SearchStream(ctx, " ", 3)
	assert.ErrorIs(t, res.Error, memnet.ErrInvalidInput)
}
