package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/intelligence"
	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/storage"
)

// scriptedLLM returns response (or err) and records the last call.
type scriptedLLM struct {
	response string
	err      error

	prompt   string
	messages []llm.Message
	opts     *llm.GenerateOptions
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	s.prompt = prompt
	s.opts = llm.ApplyGenerateOptions(opts)
	return s.response, s.err
}

func (s *scriptedLLM) GenerateWithMessages(_ context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	s.messages = messages
	s.opts = llm.ApplyGenerateOptions(opts)
	return s.response, s.err
}

func (s *scriptedLLM) Close() error { return nil }

func TestExtractFacts(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
		wantErr  bool
	}{
		{
			name:     "facts object",
			response: `{"facts": ["Likes coffee", "Lives in Paris"]}`,
			want:     []string{"Likes coffee", "Lives in Paris"},
		},
		{
			name:     "fenced JSON",
			response: "```json\n{\"facts\": [\"Likes coffee\"]}\n```",
			want:     []string{"Likes coffee"},
		},
		{
			name:     "memories shape",
			response: `{"memories": [{"data": "Owns a cat"}]}`,
			want:     []string{"Owns a cat"},
		},
		{
			name:     "empty list",
			response: `{"facts": []}`,
			want:     []string{},
		},
		{
			name:     "blank facts dropped, repeats kept",
			response: `{"facts": ["a", " ", "a", "b"]}`,
			want:     []string{"a", "a", "b"},
		},
		{
			name:     "not JSON",
			response: "I could not find any facts.",
			wantErr:  true,
		},
		{
			name:     "wrong key",
			response: `{"items": ["x"]}`,
			wantErr:  true,
		},
		{
			name:     "non-string fact",
			response: `{"facts": [42]}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &scriptedLLM{response: tt.response}
			gen := intelligence.NewLLMGenerator(stub)

			facts, err := gen.ExtractFacts(context.Background(), "user: I like coffee")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, intelligence.ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, facts)
			assert.True(t, stub.opts.JSONMode)
			require.Len(t, stub.messages, 2)
			assert.Equal(t, llm.RoleSystem, stub.messages[0].Role)
			assert.Contains(t, stub.messages[1].Content, "user: I like coffee")
		})
	}
}

func TestExtractFactsEmptyConversation(t *testing.T) {
	stub := &scriptedLLM{err: errors.New("must not be called")}
	gen := intelligence.NewLLMGenerator(stub)

	facts, err := gen.ExtractFacts(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.Nil(t, stub.messages)
}

func TestExtractFactsCustomPrompt(t *testing.T) {
	stub := &scriptedLLM{response: `{"facts": []}`}
	gen := intelligence.NewLLMGenerator(stub, intelligence.WithFactExtractionPrompt("custom prompt"))

	_, err := gen.ExtractFacts(context.Background(), "user: hi")
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", stub.messages[0].Content)
}

func TestExtractFactsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	gen := intelligence.NewLLMGenerator(&scriptedLLM{err: boom})

	_, err := gen.ExtractFacts(context.Background(), "user: hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, intelligence.ErrMalformedResponse)
}

func TestMerge(t *testing.T) {
	stub := &scriptedLLM{response: "  User likes coffee with milk\n"}
	gen := intelligence.NewLLMGenerator(stub)

	merged, err := gen.Merge(context.Background(), "User likes coffee", "User likes coffee with milk")
	require.NoError(t, err)
	assert.Equal(t, "User likes coffee with milk", merged)
	assert.Equal(t, 0.1, stub.opts.Temperature)
	assert.Contains(t, stub.prompt, "Existing memory: User likes coffee")
	assert.Contains(t, stub.prompt, "New information: User likes coffee with milk")
}

func TestMergeStripsDecoration(t *testing.T) {
	gen := intelligence.NewLLMGenerator(&scriptedLLM{response: `Merged memory: "Lives in Berlin"`})

	merged, err := gen.Merge(context.Background(), "Lives in Paris", "Moved to Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Lives in Berlin", merged)
}

func TestMergeEmptyResponse(t *testing.T) {
	gen := intelligence.NewLLMGenerator(&scriptedLLM{response: "   "})

	_, err := gen.Merge(context.Background(), "a", "b")
	assert.ErrorIs(t, err, intelligence.ErrMalformedResponse)
}

func results(contents ...string) []*storage.SearchResult {
	out := make([]*storage.SearchResult, len(contents))
	for i, c := range contents {
		out[i] = &storage.SearchResult{
			Memory: &storage.Memory{ID: int64(i + 1), Content: c},
			Score:  1 - float64(i)/10,
		}
	}
	return out
}

func TestRerank(t *testing.T) {
	input := results("A", "B", "C")

	tests := []struct {
		name     string
		response string
		want     []string
		wantErr  bool
	}{
		{name: "permutation", response: `{"ranked_indices": [2, 0, 1]}`, want: []string{"C", "A", "B"}},
		{name: "subset", response: `{"ranked_indices": [1]}`, want: []string{"B"}},
		{name: "out of range ignored", response: `{"ranked_indices": [5, 0, -1]}`, want: []string{"A"}},
		{name: "repeats ignored", response: `{"ranked_indices": [1, 1, 0]}`, want: []string{"B", "A"}},
		{name: "empty", response: `{"ranked_indices": []}`, want: []string{}},
		{name: "missing key", response: `{"order": [0]}`, wantErr: true},
		{name: "garbage", response: "first one", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &scriptedLLM{response: tt.response}
			gen := intelligence.NewLLMGenerator(stub)

			got, err := gen.Rerank(context.Background(), "drinks", input)
			if tt.wantErr {
				assert.ErrorIs(t, err, intelligence.ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			contents := make([]string, 0, len(got))
			for _, r := range got {
				contents = append(contents, r.Memory.Content)
			}
			assert.Equal(t, tt.want, contents)
			assert.Contains(t, stub.prompt, `"drinks"`)
			assert.Contains(t, stub.prompt, "0. A")
			assert.Contains(t, stub.prompt, "2. C")
		})
	}
}

func TestRerankEmptyInputSkipsModel(t *testing.T) {
	stub := &scriptedLLM{err: errors.New("must not be called")}
	gen := intelligence.NewLLMGenerator(stub)

	got, err := gen.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, stub.prompt)
}

func TestExtractEntities(t *testing.T) {
	stub := &scriptedLLM{response: `{"relations": [
		{"source": {"name": "Alice", "type": "Person"}, "target": {"name": "Paris", "type": "Location"}, "relationType": "lives_in"},
		{"source": {"name": "", "type": "Person"}, "target": {"name": "Bob", "type": "Person"}, "relationType": "knows"}
	]}`}
	gen := intelligence.NewLLMGenerator(stub)

	relations, err := gen.ExtractEntities(context.Background(), "Alice lives in Paris")
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "Alice", relations[0].Source.Name)
	assert.Equal(t, "Location", relations[0].Target.Type)
	assert.Equal(t, "lives_in", relations[0].RelationType)
}

func TestFormatConversation(t *testing.T) {
	text := intelligence.FormatConversation([]llm.Message{
		{Role: llm.RoleUser, Content: "I love coffee"},
		{Role: llm.RoleAssistant, Content: " "},
		{Role: llm.RoleAssistant, Content: "Noted!"},
	})
	assert.Equal(t, "user: I love coffee\nassistant: Noted!", text)
}
