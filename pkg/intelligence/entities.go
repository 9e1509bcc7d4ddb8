package intelligence

import (
	"context"
	"fmt"

	"github.com/memnet/memnet-go/pkg/graph"
	"github.com/memnet/memnet-go/pkg/llm"
)

const entityExtractionPrompt = `You are an entity and relationship extraction expert. Extract entities and their relationships from the text.
Return a JSON object with this structure:
{
    "relations": [
        {
            "source": {"name": "entity1", "type": "Person"},
            "target": {"name": "entity2", "type": "Location"},
            "relationType": "lives_in"
        }
    ]
}

Extract meaningful entities (Person, Organization, Location, Concept, etc.) and their relationships. Use snake_case relation types.`

// ExtractEntities asks the model for the relations mentioned in text.
// Relations missing an endpoint or a type are dropped.
func (g *LLMGenerator) ExtractEntities(ctx context.Context, text string) ([]graph.Relation, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: entityExtractionPrompt},
		{Role: llm.RoleUser, Content: text},
	}
	response, err := g.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.1), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	relations, err := parseRelations(response)
	if err != nil {
		return nil, malformed("extract entities", err)
	}
	return relations, nil
}
