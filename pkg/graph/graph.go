// Package graph holds the optional knowledge-graph extension: entities and
// the labelled relations between them, extracted from conversations next to
// the vector memories.
package graph

import (
	"context"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Entity is a named node such as a person, place or concept.
type Entity struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Relation is a directed, labelled edge between two entities. Scope is the
// owner the relation was extracted for.
type Relation struct {
	Source       Entity                 `json:"source"`
	Target       Entity                 `json:"target"`
	RelationType string                 `json:"relationType"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
	Scope        storage.Scope          `json:"scope"`
}

// Store persists entities and relations. Every read applies the owner scope
// the same way vector stores do.
type Store interface {
	// AddRelations stores relations and upserts their entities.
	AddRelations(ctx context.Context, relations []Relation) error

	// SearchEntities returns entities whose name contains query,
	// case-insensitively.
	SearchEntities(ctx context.Context, scope storage.Scope, query string) ([]Entity, error)

	// GetRelations returns relations where name is the source or target.
	GetRelations(ctx context.Context, scope storage.Scope, name string) ([]Relation, error)

	// DeleteEntity removes the entity and every relation touching it.
	DeleteEntity(ctx context.Context, scope storage.Scope, name string) error

	// DeleteByOwner removes everything within scope.
	DeleteByOwner(ctx context.Context, scope storage.Scope) error
}
