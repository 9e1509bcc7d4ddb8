package intelligence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memnet/memnet-go/pkg/llm"
)

const mergePrompt = `Merge these two memory statements into one coherent, accurate statement.

Existing memory: %s
New information: %s

Rules:
1. Preserve all factual information from both.
2. If they conflict, prefer the new information.
3. Be concise but complete.
4. Return ONLY the merged memory text, no explanation.`

// Merge asks the model to fold incoming into existing. An empty answer is a
// malformed response.
func (g *LLMGenerator) Merge(ctx context.Context, existing, incoming string) (string, error) {
	prompt := fmt.Sprintf(mergePrompt, existing, incoming)
	response, err := g.llm.Generate(ctx, prompt, llm.WithTemperature(0.1))
	if err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}

	merged := cleanMergedText(response)
	if merged == "" {
		return "", malformed("merge", errors.New("empty merged text"))
	}
	return merged, nil
}

// cleanMergedText strips fences, labels and wrapping quotes models tend to
// add around a single statement.
func cleanMergedText(response string) string {
	text := strings.TrimSpace(removeCodeBlocks(response))
	for _, label := range []string{"Merged memory:", "Merged:"} {
		if strings.HasPrefix(text, label) {
			text = strings.TrimSpace(strings.TrimPrefix(text, label))
		}
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}
