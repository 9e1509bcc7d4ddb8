// Package intelligence turns a chat-completion provider into the generation
// capability the memory pipeline needs: fact extraction, memory merging,
// relevance reranking and entity extraction.
package intelligence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/memnet/memnet-go/pkg/graph"
	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/storage"
)

// ErrMalformedResponse is wrapped by every error caused by model output that
// does not have the expected structure.
var ErrMalformedResponse = errors.New("malformed model response")

// Generator is the generation capability used by the memory client.
type Generator interface {
	// ExtractFacts returns self-contained facts found in a conversation
	// transcript. An empty slice is a valid answer.
	ExtractFacts(ctx context.Context, conversation string) ([]string, error)

	// Merge combines an existing memory with a newer statement of the same
	// fact, preferring the newer one on conflict.
	Merge(ctx context.Context, existing, incoming string) (string, error)

	// Rerank reorders results by relevance to query and may drop entries.
	// Callers are expected to fall back to the input order on error.
	Rerank(ctx context.Context, query string, results []*storage.SearchResult) ([]*storage.SearchResult, error)

	// ExtractEntities returns entity relations mentioned in text.
	ExtractEntities(ctx context.Context, text string) ([]graph.Relation, error)
}

// LLMGenerator implements Generator on top of an llm.Provider.
type LLMGenerator struct {
	llm           llm.Provider
	extractPrompt string
	logger        *log.Logger
}

// GeneratorOption configures an LLMGenerator.
type GeneratorOption func(*LLMGenerator)

// WithFactExtractionPrompt replaces the default extraction system prompt.
// The model must still answer with {"facts": [...]}.
func WithFactExtractionPrompt(prompt string) GeneratorOption {
	return func(g *LLMGenerator) {
		g.extractPrompt = prompt
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *log.Logger) GeneratorOption {
	return func(g *LLMGenerator) {
		g.logger = logger
	}
}

// NewLLMGenerator creates a generator backed by provider.
func NewLLMGenerator(provider llm.Provider, opts ...GeneratorOption) *LLMGenerator {
	g := &LLMGenerator{
		llm:    provider,
		logger: log.Default().WithPrefix("intelligence"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FormatConversation renders messages as "role: content" lines, the
// transcript format every prompt in this package expects.
func FormatConversation(messages []llm.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
	}
	return strings.Join(lines, "\n")
}

func malformed(stage string, err error) error {
	return fmt.Errorf("%s: %w: %v", stage, ErrMalformedResponse, err)
}
