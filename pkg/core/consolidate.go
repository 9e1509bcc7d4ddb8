package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memnet/memnet-go/pkg/storage"
)

// neighbourCount is how many stored memories each new fact is compared
// with. Only the best one decides between merge and insert.
const neighbourCount = 5

// batch collects the writes of one Add call so they reach the store as one
// Insert and one Update.
type batch struct {
	inserts []*storage.Memory
	updates []*storage.Memory
	results []MemoryActionResult
}

// consolidate classifies every fact as new or duplicate against the store
// as it was before the call, then flushes the batch.
func (c *Client) consolidate(ctx context.Context, facts []string, opts *AddOptions) (*AddResult, error) {
	threshold := c.config.Intelligence.DuplicateThreshold
	b := &batch{}

	for _, fact := range facts {
		if err := ctx.Err(); err != nil {
			return nil, NewMemoryError("Add", err)
		}

		embedding, err := c.embed(ctx, fact)
		if err != nil {
			return nil, stageError("Add", StageEmbed, err)
		}

		neighbours, err := c.storage.Search(ctx, embedding, opts.Scope, neighbourCount)
		if err != nil {
			return nil, stageError("Add", StageSearch, err)
		}

		if len(neighbours) > 0 && neighbours[0].Score > threshold {
			if err := c.planMerge(ctx, b, neighbours[0], fact); err != nil {
				return nil, err
			}
			continue
		}
		c.planInsert(b, fact, embedding, opts)
	}

	if err := c.flush(ctx, b); err != nil {
		return nil, err
	}
	return &AddResult{Results: b.results}, nil
}

func (c *Client) planMerge(ctx context.Context, b *batch, match *storage.SearchResult, fact string) error {
	existing := match.Memory
	merged, err := c.generator.Merge(ctx, existing.Content, fact)
	if err != nil {
		return stageError("Add", StageMerge, fmt.Errorf("%w: %w", ErrLLMOperation, err))
	}
	embedding, err := c.embed(ctx, merged)
	if err != nil {
		return stageError("Add", StageEmbed, err)
	}

	now := time.Now().UTC()
	updated := existing.Clone()
	updated.Content = merged
	updated.Embedding = embedding
	updated.Hash = storage.ContentHash(merged)
	updated.UpdatedAt = &now

	b.updates = append(b.updates, updated)
	b.results = append(b.results, MemoryActionResult{
		ID:             existing.ID,
		Memory:         merged,
		Event:          EventUpdate,
		PreviousMemory: existing.Content,
		Metadata:       updated.Metadata,
	})
	c.logger.Debug("merging into existing memory", "id", existing.ID, "score", match.Score)
	return nil
}

func (c *Client) planInsert(b *batch, fact string, embedding []float32, opts *AddOptions) {
	memory := &storage.Memory{
		ID:        c.snowflakeNode.Generate().Int64(),
		Content:   fact,
		Embedding: embedding,
		Scope:     opts.Scope,
		Metadata:  copyMetadata(opts.Metadata),
		CreatedAt: time.Now().UTC(),
		Hash:      storage.ContentHash(fact),
	}
	b.inserts = append(b.inserts, memory)
	b.results = append(b.results, MemoryActionResult{
		ID:       memory.ID,
		Memory:   fact,
		Event:    EventAdd,
		Metadata: memory.Metadata,
	})
}

// flush writes the batch. Empty halves are skipped.
func (c *Client) flush(ctx context.Context, b *batch) error {
	if len(b.inserts) > 0 {
		if err := c.storage.Insert(ctx, b.inserts); err != nil {
			return stageError("Add", StageInsert, err)
		}
	}
	if len(b.updates) > 0 {
		if err := c.storage.Update(ctx, b.updates); err != nil {
			return stageError("Add", StageUpdate, err)
		}
	}
	if b.results == nil {
		b.results = []MemoryActionResult{}
	}
	return nil
}

// addRaw stores every message verbatim, skipping extraction and
// deduplication.
func (c *Client) addRaw(ctx context.Context, messages []Message, opts *AddOptions) (*AddResult, error) {
	b := &batch{}
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		embedding, err := c.embed(ctx, content)
		if err != nil {
			return nil, stageError("Add", StageEmbed, err)
		}
		c.planInsert(b, content, embedding, opts)
	}
	if err := c.flush(ctx, b); err != nil {
		return nil, err
	}
	return &AddResult{Results: b.results}, nil
}

func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
