package intelligence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/memnet/memnet-go/pkg/graph"
)

// removeCodeBlocks strips markdown code fence markers.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

func jsonObject(response string) (string, error) {
	text := removeCodeBlocks(response)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return text[start : end+1], nil
}

func parseFactsResponse(response string) ([]string, error) {
	raw, err := jsonObject(response)
	if err != nil {
		return nil, err
	}

	var result struct {
		Facts    *[]interface{} `json:"facts"`
		Memories *[]struct {
			Data string `json:"data"`
		} `json:"memories"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	var candidates []string
	switch {
	case result.Facts != nil:
		for _, f := range *result.Facts {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("fact %v is not a string", f)
			}
			candidates = append(candidates, s)
		}
	case result.Memories != nil:
		for _, m := range *result.Memories {
			candidates = append(candidates, m.Data)
		}
	default:
		return nil, errors.New(`response has neither "facts" nor "memories"`)
	}

	// Repeated facts are kept; consolidation treats each one on its own.
	facts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			facts = append(facts, c)
		}
	}
	return facts, nil
}

func parseRankedIndices(response string) ([]int, error) {
	raw, err := jsonObject(response)
	if err != nil {
		return nil, err
	}
	var result struct {
		RankedIndices *[]int `json:"ranked_indices"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if result.RankedIndices == nil {
		return nil, errors.New(`response has no "ranked_indices"`)
	}
	return *result.RankedIndices, nil
}

func parseRelations(response string) ([]graph.Relation, error) {
	raw, err := jsonObject(response)
	if err != nil {
		return nil, err
	}
	var result struct {
		Relations []graph.Relation `json:"relations"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	out := make([]graph.Relation, 0, len(result.Relations))
	for _, r := range result.Relations {
		r.Source.Name = strings.TrimSpace(r.Source.Name)
		r.Target.Name = strings.TrimSpace(r.Target.Name)
		r.RelationType = strings.TrimSpace(r.RelationType)
		if r.Source.Name == "" || r.Target.Name == "" || r.RelationType == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
