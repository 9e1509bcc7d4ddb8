package graph

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/memnet/memnet-go/pkg/storage"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	relations []Relation
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// AddRelations implements Store. Relations with an empty endpoint name are
// skipped.
func (s *MemoryStore) AddRelations(ctx context.Context, relations []Relation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range relations {
		if strings.TrimSpace(r.Source.Name) == "" || strings.TrimSpace(r.Target.Name) == "" {
			continue
		}
		s.relations = append(s.relations, r)
	}
	return nil
}

// SearchEntities implements Store. Each entity appears once; the most
// recently added type wins.
func (s *MemoryStore) SearchEntities(ctx context.Context, scope storage.Scope, query string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]Entity)
	for _, r := range s.relations {
		if !scope.Matches(r.Scope) {
			continue
		}
		for _, e := range []Entity{r.Source, r.Target} {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				found[strings.ToLower(e.Name)] = e
			}
		}
	}

	out := make([]Entity, 0, len(found))
	for _, e := range found {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetRelations implements Store.
func (s *MemoryStore) GetRelations(ctx context.Context, scope storage.Scope, name string) ([]Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Relation
	for _, r := range s.relations {
		if scope.Matches(r.Scope) && (sameName(r.Source.Name, name) || sameName(r.Target.Name, name)) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteEntity implements Store.
func (s *MemoryStore) DeleteEntity(ctx context.Context, scope storage.Scope, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = s.keep(func(r Relation) bool {
		return !(scope.Matches(r.Scope) && (sameName(r.Source.Name, name) || sameName(r.Target.Name, name)))
	})
	return nil
}

// DeleteByOwner implements Store.
func (s *MemoryStore) DeleteByOwner(ctx context.Context, scope storage.Scope) error {
	if scope.IsEmpty() {
		return storage.ErrEmptyScope
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = s.keep(func(r Relation) bool { return !scope.Matches(r.Scope) })
	return nil
}

// keep filters relations in place. The caller holds the write lock.
func (s *MemoryStore) keep(pred func(Relation) bool) []Relation {
	out := s.relations[:0]
	for _, r := range s.relations {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}
