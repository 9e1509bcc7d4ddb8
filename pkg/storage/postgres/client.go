// Package postgres provides a PostgreSQL + pgvector implementation of
// storage.VectorStore. Similarity is computed by the database with the
// pgvector cosine distance operator.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Client is a PostgreSQL + pgvector client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration. DSN, when set, takes precedence
// over the individual connection fields.
type Config struct {
	DSN                string
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient connects, enables the vector extension and creates the table.
func NewClient(cfg *Config) (*Client, error) {
	if err := storage.ValidateIdentifier(cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewPostgresClient: embedding dimension is required")
	}

	dsn := cfg.DSN
	if dsn == "" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255),
			agent_id VARCHAR(255),
			run_id VARCHAR(255),
			content TEXT NOT NULL,
			hash VARCHAR(32),
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(user_id, agent_id, run_id)`,
		c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}
	return nil
}

// Insert writes the batch in a single transaction.
func (c *Client) Insert(ctx context.Context, memories []*storage.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, agent_id, run_id, content, hash, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.collectionName)

	return withTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, m := range memories {
			metadataJSON, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			createdAt := m.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			_, err = tx.ExecContext(ctx, query,
				m.ID,
				nullString(m.Scope.UserID),
				nullString(m.Scope.AgentID),
				nullString(m.Scope.RunID),
				m.Content,
				m.Hash,
				pgvector.NewVector(m.Embedding),
				metadataJSON,
				createdAt,
				nullTime(m.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("Insert: memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Update rewrites content, hash, embedding and updated_at by id.
func (c *Client) Update(ctx context.Context, memories []*storage.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, hash = $2, embedding = $3, updated_at = COALESCE($4, updated_at)
		WHERE id = $5
	`, c.collectionName)

	return withTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, m := range memories {
			_, err := tx.ExecContext(ctx, query,
				m.Content, m.Hash, pgvector.NewVector(m.Embedding), nullTime(m.UpdatedAt), m.ID)
			if err != nil {
				return fmt.Errorf("Update: memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Search ranks rows within scope by pgvector cosine distance.
func (c *Client) Search(ctx context.Context, embedding []float32, scope storage.Scope, limit int) ([]*storage.SearchResult, error) {
	// $1 is the query vector.
	whereClause, filterArgs := buildWhereClauseWithOffset(scope, 2)
	args := append([]interface{}{pgvector.NewVector(embedding)}, filterArgs...)

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1, id
	`, selectColumns, c.collectionName, whereClause)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.SearchResult
	for rows.Next() {
		var score float64
		m, err := scanMemory(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		results = append(results, &storage.SearchResult{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	// Re-sort so floating point noise from the server cannot break the
	// id tie-break.
	storage.SortResults(results)
	return results, nil
}

// List returns memories within scope ordered by id.
func (c *Client) List(ctx context.Context, scope storage.Scope, limit int) ([]*storage.Memory, error) {
	whereClause, args := buildWhereClause(scope)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY id`, selectColumns, c.collectionName, whereClause)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return memories, nil
}

// Get returns nil when no row has the id.
func (c *Client) Get(ctx context.Context, id int64) (*storage.Memory, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, c.collectionName)
	m, err := scanMemory(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return m, nil
}

// Delete removes the row with the id, if any.
func (c *Client) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.collectionName)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// DeleteByOwner removes every row within scope.
func (c *Client) DeleteByOwner(ctx context.Context, scope storage.Scope) error {
	if scope.IsEmpty() {
		return storage.ErrEmptyScope
	}
	whereClause, args := buildWhereClause(scope)
	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("DeleteByOwner: %w", err)
	}
	return nil
}

// CreateIndex builds an HNSW or IVFFlat index on the embedding column.
func (c *Client) CreateIndex(ctx context.Context, cfg *storage.IndexConfig) error {
	name := cfg.IndexName
	if name == "" {
		name = "idx_" + c.collectionName + "_embedding"
	}
	if err := storage.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("CreateIndex: %w", err)
	}

	var query string
	switch cfg.IndexType {
	case storage.IndexTypeHNSW:
		params := storage.HNSWParams{M: 16, EfConstruction: 64}
		if cfg.HNSWParams != nil {
			params = *cfg.HNSWParams
		}
		query = fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw (embedding vector_cosine_ops)
			WITH (m = %d, ef_construction = %d)
		`, name, c.collectionName, params.M, params.EfConstruction)
	case storage.IndexTypeIVFFlat:
		lists := 100
		if cfg.IVFParams != nil {
			lists = cfg.IVFParams.Lists
		}
		query = fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = %d)
		`, name, c.collectionName, lists)
	default:
		return fmt.Errorf("CreateIndex: unsupported index type: %s", cfg.IndexType)
	}
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("CreateIndex: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
