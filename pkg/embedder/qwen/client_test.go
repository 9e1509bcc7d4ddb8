package qwen_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/embedder/qwen"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := qwen.NewClient(&qwen.Config{})
	assert.Error(t, err)
}

func TestEmbedBatch_ReordersByTextIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-v4", body["model"])

		_, _ = w.Write([]byte(`{"output":{"embeddings":[
			{"text_index":1,"embedding":[0,1]},
			{"text_index":0,"embedding":[1,0]}
		]}}`))
	}))
	defer srv.Close()

	c, err := qwen.NewClient(&qwen.Config{APIKey: "key", BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	out, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestEmbed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := qwen.NewClient(&qwen.Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
