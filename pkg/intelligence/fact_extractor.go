package intelligence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memnet/memnet-go/pkg/llm"
)

// ExtractFacts asks the model for the facts in conversation.
//
// The model answers {"facts": ["...", ...]}. The older
// {"memories": [{"data": "..."}]} shape is accepted as well. Blank and
// duplicate facts are dropped.
func (g *LLMGenerator) ExtractFacts(ctx context.Context, conversation string) ([]string, error) {
	if strings.TrimSpace(conversation) == "" {
		return []string{}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: g.factExtractionPrompt()},
		{Role: llm.RoleUser, Content: "Input:\n" + conversation},
	}
	response, err := g.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.1), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	facts, err := parseFactsResponse(response)
	if err != nil {
		return nil, malformed("extract facts", err)
	}
	g.logger.Debug("extracted facts", "count", len(facts))
	return facts, nil
}

func (g *LLMGenerator) factExtractionPrompt() string {
	if g.extractPrompt != "" {
		return g.extractPrompt
	}
	return fmt.Sprintf(factExtractionPrompt, time.Now().Format("2006-01-02"))
}

const factExtractionPrompt = `You are a Personal Information Organizer. Extract the facts, preferences, plans and needs worth remembering about the user from the conversation into distinct, atomic statements.

Rules:
1. SELF-CONTAINED: every fact must make sense on its own. Replace pronouns with the names or nouns they refer to.
2. TEMPORAL: keep time information ("yesterday", "in May 2023") inside the fact it belongs to.
3. SEPARATE: one fact per statement. Split compound statements.
4. INTENTIONS: extract intentions, needs and requests even without a date.
5. Ignore greetings, small talk and anything the assistant invented.
6. Keep the language of the input.

Examples:
Input: user: Hi.
Output: {"facts": []}

Input: user: Yesterday I met John at 3pm. We discussed the project.
Output: {"facts": ["Met John at 3pm yesterday", "Discussed the project with John yesterday"]}

Input: user: I'm John, a software engineer. I want to book a cardiologist.
Output: {"facts": ["Name is John", "John is a software engineer", "Wants to book an appointment with a cardiologist"]}

Today is %s.
Return only JSON of the form {"facts": ["fact1", "fact2"]}. Return {"facts": []} when nothing is worth remembering.`
