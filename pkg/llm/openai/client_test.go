package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/llm/openai"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{})
	assert.Error(t, err)
}

func TestGenerateWithMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])
		format, ok := req["response_format"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"facts\":[]}"}}]}`))
	}))
	defer srv.Close()

	c, err := openai.NewClient(&openai.Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "extract"},
		{Role: llm.RoleUser, Content: "I like coffee"},
	}, llm.WithJSONMode())
	require.NoError(t, err)
	assert.Equal(t, `{"facts":[]}`, out)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := openai.NewClient(&openai.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.Error(t, err)
}
