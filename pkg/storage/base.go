// Package storage defines the vector store capability used by the memory
// client, along with the memory record and owner scope types shared by all
// backends.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Memory is a single consolidated fact held by a vector store.
//
// ID and Scope are fixed at creation. Content, Embedding, Hash and UpdatedAt
// change together when the memory is merged or point-updated.
type Memory struct {
	// ID is the globally unique identifier assigned by the caller.
	ID int64

	// Content is the fact text.
	Content string

	// Embedding is the dense vector of Content.
	Embedding []float32

	// Scope identifies the owner of the memory.
	Scope Scope

	// Metadata contains caller supplied key/value pairs.
	Metadata map[string]interface{}

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time

	// UpdatedAt is nil until the memory is updated for the first time.
	UpdatedAt *time.Time

	// Hash is the hex MD5 digest of Content.
	Hash string
}

// Clone returns a deep copy of m so stores never share mutable state with
// their callers.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	out := *m
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.UpdatedAt != nil {
		t := *m.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// SearchResult pairs a memory with its similarity to the query vector.
type SearchResult struct {
	Memory *Memory
	Score  float64
}

// VectorStore is implemented by every storage backend.
//
// Implementations must be safe for concurrent use and must apply the scope
// filter on every read path.
type VectorStore interface {
	// Insert stores a batch of memories whose ids are already assigned.
	Insert(ctx context.Context, memories []*Memory) error

	// Update replaces content, embedding, hash and update time of the
	// memories matched by id. Ids that are not stored are skipped.
	Update(ctx context.Context, memories []*Memory) error

	// Search returns up to limit memories within scope ordered by
	// descending cosine similarity. Ties are broken by ascending id.
	Search(ctx context.Context, embedding []float32, scope Scope, limit int) ([]*SearchResult, error)

	// List returns up to limit memories within scope.
	List(ctx context.Context, scope Scope, limit int) ([]*Memory, error)

	// Get returns the memory with the given id, or nil if it does not exist.
	Get(ctx context.Context, id int64) (*Memory, error)

	// Delete removes the memory with the given id. Missing ids are ignored.
	Delete(ctx context.Context, id int64) error

	// DeleteByOwner removes every memory within scope. An empty scope is
	// rejected.
	DeleteByOwner(ctx context.Context, scope Scope) error

	// Close releases backend resources.
	Close() error
}

// ContentHash returns the hex MD5 digest used for Memory.Hash.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateIdentifier rejects collection names that are unsafe to interpolate
// into SQL statements.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid collection name %q", name)
		}
	}
	return nil
}
