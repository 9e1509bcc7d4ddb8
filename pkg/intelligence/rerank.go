package intelligence

import (
	"context"
	"fmt"
	"strings"

	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/storage"
)

const rerankPrompt = `Given the query: "%s"

Rank these memories by relevance (most relevant first):
%s

Return a JSON object with this structure:
{"ranked_indices": [0, 2, 1]}

Only return indices of relevant memories, omit irrelevant ones.`

// Rerank asks the model for a relevance permutation of results. Indices the
// model invents or repeats are ignored and omitted entries are dropped.
func (g *LLMGenerator) Rerank(ctx context.Context, query string, results []*storage.SearchResult) ([]*storage.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	var listing strings.Builder
	for i, r := range results {
		fmt.Fprintf(&listing, "%d. %s\n", i, r.Memory.Content)
	}
	prompt := fmt.Sprintf(rerankPrompt, query, strings.TrimRight(listing.String(), "\n"))

	response, err := g.llm.Generate(ctx, prompt, llm.WithTemperature(0.1), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	indices, err := parseRankedIndices(response)
	if err != nil {
		return nil, malformed("rerank", err)
	}
	return ApplyRanking(results, indices), nil
}

// ApplyRanking returns results reordered by indices. Out-of-range and
// repeated indices are skipped.
func ApplyRanking(results []*storage.SearchResult, indices []int) []*storage.SearchResult {
	seen := make(map[int]bool, len(indices))
	out := make([]*storage.SearchResult, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(results) || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, results[idx])
	}
	return out
}
