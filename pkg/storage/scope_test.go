package storage_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/storage"
)

func TestScope_Matches(t *testing.T) {
	stored := storage.Scope{UserID: storage.Some("alice"), AgentID: storage.Some("bot")}

	tests := []struct {
		name   string
		filter storage.Scope
		want   bool
	}{
		{"unscoped", storage.Scope{}, true},
		{"same user", storage.Scope{UserID: storage.Some("alice")}, true},
		{"other user", storage.Scope{UserID: storage.Some("bob")}, false},
		{"user and agent", storage.Scope{UserID: storage.Some("alice"), AgentID: storage.Some("bot")}, true},
		{"run not stored", storage.Scope{RunID: storage.Some("r1")}, false},
		{"empty user is not absent", storage.Scope{UserID: storage.Some("")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(stored))
		})
	}
}

func TestScope_EmptyStringUser(t *testing.T) {
	stored := storage.Scope{UserID: storage.Some("")}
	assert.True(t, storage.Scope{UserID: storage.Some("")}.Matches(stored))
	assert.False(t, stored.IsEmpty())
	assert.True(t, storage.Scope{}.IsEmpty())
}

func TestScope_Fields(t *testing.T) {
	s := storage.Scope{UserID: storage.Some("alice"), RunID: storage.Some("r1")}
	assert.Equal(t, map[string]string{"user_id": "alice", "run_id": "r1"}, s.Fields())
}

func TestOptString_JSON(t *testing.T) {
	data, err := json.Marshal(storage.Scope{UserID: storage.Some("alice")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"alice","agent_id":null,"run_id":null}`, string(data))

	var s storage.Scope
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, storage.Some("alice"), s.UserID)
	assert.False(t, s.AgentID.Valid)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, storage.CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, storage.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, storage.CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, storage.CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, storage.CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestTopK_TieBreakByID(t *testing.T) {
	results := []*storage.SearchResult{
		{Memory: &storage.Memory{ID: 3}, Score: 0.5},
		{Memory: &storage.Memory{ID: 1}, Score: 0.5},
		{Memory: &storage.Memory{ID: 2}, Score: 0.9},
	}
	top := storage.TopK(results, 2)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].Memory.ID)
	assert.Equal(t, int64(1), top[1].Memory.ID)
}
