// Package inmemory provides the reference VectorStore backed by process
// memory. Similarity is computed exhaustively with cosine similarity.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Config contains configuration for the in-memory store.
type Config struct {
	// Dimensions, when positive, is enforced on every inserted or updated
	// embedding.
	Dimensions int
}

// Store implements storage.VectorStore. Memories are grouped by user id so
// user-scoped reads only touch that user's items.
type Store struct {
	mu     sync.RWMutex
	owners map[storage.OptString]map[int64]*storage.Memory
	index  map[int64]storage.OptString
	dims   int
	closed bool
}

// New creates an empty store.
func New(cfg *Config) *Store {
	s := &Store{
		owners: make(map[storage.OptString]map[int64]*storage.Memory),
		index:  make(map[int64]storage.OptString),
	}
	if cfg != nil {
		s.dims = cfg.Dimensions
	}
	return s
}

func (s *Store) checkDims(m *storage.Memory) error {
	if s.dims > 0 && len(m.Embedding) != s.dims {
		return fmt.Errorf("inmemory: memory %d has %d dimensions, want %d", m.ID, len(m.Embedding), s.dims)
	}
	return nil
}

// Insert implements storage.VectorStore. The batch is validated before any
// memory is stored, so a failed insert leaves the store unchanged.
func (s *Store) Insert(ctx context.Context, memories []*storage.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range memories {
		if err := s.checkDims(m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, m := range memories {
		if _, ok := s.index[m.ID]; ok {
			return fmt.Errorf("inmemory: duplicate id %d", m.ID)
		}
	}
	for _, m := range memories {
		owner := m.Scope.UserID
		bucket, ok := s.owners[owner]
		if !ok {
			bucket = make(map[int64]*storage.Memory)
			s.owners[owner] = bucket
		}
		bucket[m.ID] = m.Clone()
		s.index[m.ID] = owner
	}
	return nil
}

// Update implements storage.VectorStore.
func (s *Store) Update(ctx context.Context, memories []*storage.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range memories {
		if err := s.checkDims(m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, m := range memories {
		owner, ok := s.index[m.ID]
		if !ok {
			continue
		}
		stored := s.owners[owner][m.ID]
		// Replace rather than mutate so clones handed out earlier stay intact.
		next := stored.Clone()
		next.Content = m.Content
		next.Embedding = append([]float32(nil), m.Embedding...)
		next.Hash = m.Hash
		if m.UpdatedAt != nil {
			t := *m.UpdatedAt
			next.UpdatedAt = &t
		}
		s.owners[owner][m.ID] = next
	}
	return nil
}

// candidates returns the stored memories visible through scope. The caller
// must hold at least a read lock.
func (s *Store) candidates(scope storage.Scope) []*storage.Memory {
	var out []*storage.Memory
	collect := func(bucket map[int64]*storage.Memory) {
		for _, m := range bucket {
			if scope.Matches(m.Scope) {
				out = append(out, m)
			}
		}
	}
	if scope.UserID.Valid {
		collect(s.owners[scope.UserID])
	} else {
		for _, bucket := range s.owners {
			collect(bucket)
		}
	}
	return out
}

// Search implements storage.VectorStore.
func (s *Store) Search(ctx context.Context, embedding []float32, scope storage.Scope, limit int) ([]*storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	found := s.candidates(scope)
	results := make([]*storage.SearchResult, 0, len(found))
	for _, m := range found {
		results = append(results, &storage.SearchResult{
			Memory: m.Clone(),
			Score:  storage.CosineSimilarity(embedding, m.Embedding),
		})
	}
	return storage.TopK(results, limit), nil
}

// List implements storage.VectorStore. Memories are returned by ascending id.
func (s *Store) List(ctx context.Context, scope storage.Scope, limit int) ([]*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	found := s.candidates(scope)
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]*storage.Memory, len(found))
	for i, m := range found {
		out[i] = m.Clone()
	}
	return out, nil
}

// Get implements storage.VectorStore.
func (s *Store) Get(ctx context.Context, id int64) (*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	owner, ok := s.index[id]
	if !ok {
		return nil, nil
	}
	return s.owners[owner][id].Clone(), nil
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	owner, ok := s.index[id]
	if !ok {
		return nil
	}
	delete(s.owners[owner], id)
	if len(s.owners[owner]) == 0 {
		delete(s.owners, owner)
	}
	delete(s.index, id)
	return nil
}

// DeleteByOwner implements storage.VectorStore.
func (s *Store) DeleteByOwner(ctx context.Context, scope storage.Scope) error {
	if scope.IsEmpty() {
		return storage.ErrEmptyScope
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, m := range s.candidates(scope) {
		owner := s.index[m.ID]
		delete(s.owners[owner], m.ID)
		if len(s.owners[owner]) == 0 {
			delete(s.owners, owner)
		}
		delete(s.index, m.ID)
	}
	return nil
}

// Len returns the number of stored memories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Close implements storage.VectorStore. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = fmt.Errorf("inmemory: store is closed")
