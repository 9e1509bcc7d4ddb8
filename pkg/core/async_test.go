package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

func TestAsyncClient(t *testing.T) {
	f := newFixture(t)
	ac := memnet.NewAsyncClient(f.client)
	ctx := context.Background()

	var pending []<-chan memnet.Result[*memnet.AddResult]
	for i := 0; i < 5; i++ {
		pending = append(pending, ac.AddAsync(ctx,
			userMessages(fmt.Sprintf("fact %d", i)), memnet.WithUserID("u1"), memnet.WithInfer(false)))
	}
	ac.Wait()

	for _, ch := range pending {
		res := <-ch
		require.NoError(t, res.Err)
		require.Len(t, res.Value.Results, 1)
	}

	all := <-ac.GetAllAsync(ctx, memnet.WithUserIDForGetAll("u1"))
	require.NoError(t, all.Err)
	assert.Len(t, all.Value, 5)

	f.embedder.set("fact 0", 1, 0)
	search := <-ac.SearchAsync(ctx, "fact 0", memnet.WithUserIDForSearch("u1"))
	require.NoError(t, search.Err)
	assert.Len(t, search.Value, 5)

	id := all.Value[0].ID
	updated := <-ac.UpdateAsync(ctx, id, "changed")
	require.NoError(t, updated.Err)
	assert.True(t, updated.Value)

	got := <-ac.GetAsync(ctx, id)
	require.NoError(t, got.Err)
	assert.Equal(t, "changed", got.Value.Content)

	require.NoError(t, (<-ac.DeleteAsync(ctx, id)).Err)
	require.NoError(t, (<-ac.DeleteAllAsync(ctx, memnet.WithUserIDForDeleteAll("u1"))).Err)

	require.NoError(t, ac.Close())
	_, err := f.client.GetAll(ctx)
	assert.ErrorIs(t, err, memnet.ErrClosed)
}
