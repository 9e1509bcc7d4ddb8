// Package chromem provides a storage.VectorStore on top of chromem-go, an
// embeddable vector database. Vectors live in a single chromem collection;
// owner scope fields are mirrored into document metadata and applied as a
// where filter on every query.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/philippgille/chromem-go"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Present scope values carry this prefix so an absent field can never match
// a filter on the empty string.
const presentPrefix = "v:"

// Config contains configuration for the chromem store.
type Config struct {
	// CollectionName names the chromem collection. Defaults to "memories".
	CollectionName string

	// EmbeddingModelDims, when positive, is enforced on writes.
	EmbeddingModelDims int

	Logger *log.Logger
}

// Store implements storage.VectorStore.
type Store struct {
	mu     sync.RWMutex
	db     *chromem.DB
	col    *chromem.Collection
	items  map[int64]*storage.Memory
	dims   int
	logger *log.Logger
}

// NewStore creates an empty in-process chromem database.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("chromem")
	}

	db := chromem.NewDB()
	// Embeddings are always supplied by the caller, so the collection never
	// needs an embedding function of its own.
	col, err := db.CreateCollection(name, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("NewChromemStore: %w", err)
	}
	return &Store{
		db:     db,
		col:    col,
		items:  make(map[int64]*storage.Memory),
		dims:   cfg.EmbeddingModelDims,
		logger: logger,
	}, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must carry an embedding")
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func scopeWhere(scope storage.Scope) map[string]string {
	fields := scope.Fields()
	if len(fields) == 0 {
		return nil
	}
	where := make(map[string]string, len(fields))
	for k, v := range fields {
		where[k] = presentPrefix + v
	}
	return where
}

func document(m *storage.Memory) chromem.Document {
	return chromem.Document{
		ID:        docID(m.ID),
		Content:   m.Content,
		Embedding: append([]float32(nil), m.Embedding...),
		Metadata:  scopeWhere(m.Scope),
	}
}

func (s *Store) checkDims(m *storage.Memory) error {
	if len(m.Embedding) == 0 {
		return fmt.Errorf("chromem: memory %d has no embedding", m.ID)
	}
	if s.dims > 0 && len(m.Embedding) != s.dims {
		return fmt.Errorf("chromem: memory %d has %d dimensions, want %d", m.ID, len(m.Embedding), s.dims)
	}
	return nil
}

// Insert implements storage.VectorStore.
func (s *Store) Insert(ctx context.Context, memories []*storage.Memory) error {
	for _, m := range memories {
		if err := s.checkDims(m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range memories {
		if _, ok := s.items[m.ID]; ok {
			return fmt.Errorf("chromem: duplicate id %d", m.ID)
		}
	}
	for i, m := range memories {
		if err := s.col.AddDocument(ctx, document(m)); err != nil {
			// Roll back the part of the batch already added.
			for _, done := range memories[:i] {
				s.remove(ctx, done.ID)
			}
			return fmt.Errorf("chromem: add document %d: %w", m.ID, err)
		}
		s.items[m.ID] = m.Clone()
	}
	s.logger.Debug("inserted documents", "count", len(memories))
	return nil
}

// Update implements storage.VectorStore.
func (s *Store) Update(ctx context.Context, memories []*storage.Memory) error {
	for _, m := range memories {
		if err := s.checkDims(m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range memories {
		stored, ok := s.items[m.ID]
		if !ok {
			continue
		}
		next := stored.Clone()
		next.Content = m.Content
		next.Embedding = append([]float32(nil), m.Embedding...)
		next.Hash = m.Hash
		if m.UpdatedAt != nil {
			t := *m.UpdatedAt
			next.UpdatedAt = &t
		}

		if err := s.col.Delete(ctx, nil, nil, docID(m.ID)); err != nil {
			return fmt.Errorf("chromem: replace document %d: %w", m.ID, err)
		}
		if err := s.col.AddDocument(ctx, document(next)); err != nil {
			// The document is gone from the index; drop it from the side
			// table too so reads stay consistent.
			delete(s.items, m.ID)
			return fmt.Errorf("chromem: replace document %d: %w", m.ID, err)
		}
		s.items[m.ID] = next
	}
	return nil
}

// countLocked returns how many stored memories fall within scope.
func (s *Store) countLocked(scope storage.Scope) int {
	n := 0
	for _, m := range s.items {
		if scope.Matches(m.Scope) {
			n++
		}
	}
	return n
}

// Search implements storage.VectorStore.
func (s *Store) Search(ctx context.Context, embedding []float32, scope storage.Scope, limit int) ([]*storage.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults larger than the number of candidates, so ask
	// for exactly the matching documents and truncate after the tie-break.
	n := s.countLocked(scope)
	if n == 0 {
		return nil, nil
	}
	found, err := s.col.QueryEmbedding(ctx, embedding, n, scopeWhere(scope), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	results := make([]*storage.SearchResult, 0, len(found))
	for _, r := range found {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			s.logger.Warn("skipping document with foreign id", "id", r.ID)
			continue
		}
		m, ok := s.items[id]
		if !ok || !scope.Matches(m.Scope) {
			continue
		}
		results = append(results, &storage.SearchResult{Memory: m.Clone(), Score: float64(r.Similarity)})
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

	var out []*storage.Memory
	for _, m := range s.items {
		if scope.Matches(m.Scope) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
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
	return s.items[id].Clone(), nil
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, docID(id)); err != nil {
		return fmt.Errorf("chromem: delete %d: %w", id, err)
	}
	delete(s.items, id)
	return nil
}

// DeleteByOwner implements storage.VectorStore.
func (s *Store) DeleteByOwner(ctx context.Context, scope storage.Scope) error {
	if scope.IsEmpty() {
		return storage.ErrEmptyScope
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.Delete(ctx, scopeWhere(scope), nil); err != nil {
		return fmt.Errorf("chromem: delete by owner: %w", err)
	}
	for id, m := range s.items {
		if scope.Matches(m.Scope) {
			delete(s.items, id)
		}
	}
	return nil
}

// remove drops a document during rollback. The caller holds the lock.
func (s *Store) remove(ctx context.Context, id int64) {
	if err := s.col.Delete(ctx, nil, nil, docID(id)); err != nil {
		s.logger.Warn("rollback failed", "id", id, "error", err)
	}
	delete(s.items, id)
}

// Close implements storage.VectorStore.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]*storage.Memory)
	return s.db.DeleteCollection(s.col.Name)
}
