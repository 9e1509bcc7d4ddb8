package core_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	memnet "github.com/memnet/memnet-go/pkg/core"
	"github.com/memnet/memnet-go/pkg/graph"
	"github.com/memnet/memnet-go/pkg/intelligence"
	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/storage"
	"github.com/memnet/memnet-go/pkg/storage/inmemory"
)

const testDims = 16

// stubEmbedder returns fixed vectors for known texts and a fresh basis
// vector for every other text, so unrelated texts have similarity 0.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	next    int
	err     error
	calls   int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float32)}
}

func (e *stubEmbedder) set(text string, vec ...float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	padded := make([]float32, testDims)
	copy(padded, vec)
	e.vectors[text] = padded
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	v := make([]float32, testDims)
	v[testDims-1-e.next%testDims] = 1
	e.next++
	e.vectors[text] = v
	return append([]float32(nil), v...), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return testDims }
func (e *stubEmbedder) Close() error    { return nil }

// stubGenerator extracts one fact per message, merges by joining texts and
// reranks with a configurable function.
type stubGenerator struct {
	mu         sync.Mutex
	facts      []string
	extractErr error
	mergeErr   error
	mergeCalls [][2]string
	rerank     func([]*storage.SearchResult) ([]*storage.SearchResult, error)
	relations  []graph.Relation
	entityErr  error
}

func (g *stubGenerator) ExtractFacts(ctx context.Context, conversation string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	if g.facts != nil {
		return g.facts, nil
	}
	var facts []string
	for _, line := range strings.Split(conversation, "\n") {
		if _, content, ok := strings.Cut(line, ": "); ok {
			facts = append(facts, content)
		}
	}
	return facts, nil
}

func (g *stubGenerator) Merge(ctx context.Context, existing, incoming string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.mergeCalls = append(g.mergeCalls, [2]string{existing, incoming})
	g.mu.Unlock()
	if g.mergeErr != nil {
		return "", g.mergeErr
	}
	return existing + "; " + incoming, nil
}

func (g *stubGenerator) Rerank(ctx context.Context, _ string, results []*storage.SearchResult) ([]*storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.rerank == nil {
		return results, nil
	}
	return g.rerank(results)
}

func (g *stubGenerator) ExtractEntities(ctx context.Context, _ string) ([]graph.Relation, error) {
	if g.entityErr != nil {
		return nil, g.entityErr
	}
	return append([]graph.Relation(nil), g.relations...), nil
}

// countingStore records the bulk writes reaching the wrapped store.
type countingStore struct {
	storage.VectorStore

	mu          sync.Mutex
	insertSizes []int
	updateSizes []int
}

func (s *countingStore) Insert(ctx context.Context, batch []*storage.Memory) error {
	s.mu.Lock()
	s.insertSizes = append(s.insertSizes, len(batch))
	s.mu.Unlock()
	return s.VectorStore.Insert(ctx, batch)
}

func (s *countingStore) Update(ctx context.Context, batch []*storage.Memory) error {
	s.mu.Lock()
	s.updateSizes = append(s.updateSizes, len(batch))
	s.mu.Unlock()
	return s.VectorStore.Update(ctx, batch)
}

// failingStore fails every Search.
type failingStore struct {
	storage.VectorStore
}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Search(context.Context, []float32, storage.Scope, int) ([]*storage.SearchResult, error) {
	return nil, errStoreDown
}

type fixture struct {
	client    *memnet.Client
	store     *countingStore
	embedder  *stubEmbedder
	generator *stubGenerator
	graph     *graph.MemoryStore
}

type fixtureOption func(*memnet.Config, *memnet.Dependencies)

func withGraph() fixtureOption {
	return func(_ *memnet.Config, deps *memnet.Dependencies) {
		deps.Graph = graph.NewMemoryStore()
	}
}

func withConfig(fn func(*memnet.Config)) fixtureOption {
	return func(cfg *memnet.Config, _ *memnet.Dependencies) {
		fn(cfg)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := memnet.DefaultConfig()
	cfg.Embedder.Dimensions = testDims
	cfg.Logger = log.New(io.Discard)

	f := &fixture{
		store:     &countingStore{VectorStore: inmemory.New(&inmemory.Config{Dimensions: testDims})},
		embedder:  newStubEmbedder(),
		generator: &stubGenerator{},
	}
	deps := memnet.Dependencies{
		Store:     f.store,
		Embedder:  f.embedder,
		Generator: f.generator,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}
	if g, ok := deps.Graph.(*graph.MemoryStore); ok {
		f.graph = g
	}

	client, err := memnet.NewClientWithDependencies(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	f.client = client
	return f
}

func userMessages(contents ...string) []memnet.Message {
	out := make([]memnet.Message, len(contents))
	for i, c := range contents {
		out[i] = memnet.Message{Role: "user", Content: c}
	}
	return out
}

// cannedLLM answers every request with the same text.
type cannedLLM struct {
	response string
}

func (c cannedLLM) Generate(context.Context, string, ...llm.GenerateOption) (string, error) {
	return c.response, nil
}

func (c cannedLLM) GenerateWithMessages(context.Context, []llm.Message, ...llm.GenerateOption) (string, error) {
	return c.response, nil
}

func (cannedLLM) Close() error { return nil }

// withLLMGenerator replaces the stub generator with the prompt-driven one
// answering response.
func withLLMGenerator(response string) fixtureOption {
	return func(_ *memnet.Config, deps *memnet.Dependencies) {
		deps.Generator = intelligence.NewLLMGenerator(cannedLLM{response: response})
	}
}

var _ intelligence.Generator = (*stubGenerator)(nil)
