package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/llm/anthropic"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := anthropic.NewClient(&anthropic.Config{})
	assert.Error(t, err)
}

func TestGenerateWithMessages_LiftsSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var req struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.System, 1)
		assert.Equal(t, "you merge memories", req.System[0].Text)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"merged fact"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}
		}`))
	}))
	defer srv.Close()

	c, err := anthropic.NewClient(&anthropic.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "you merge memories"},
		{Role: llm.RoleUser, Content: "a + b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "merged fact", out)
}
