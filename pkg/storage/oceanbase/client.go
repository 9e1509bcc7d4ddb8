// Package oceanbase provides an OceanBase implementation of
// storage.VectorStore over the MySQL protocol, using the native VECTOR
// column type and cosine_distance function.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Client is an OceanBase client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains OceanBase configuration. DSN, when set, is passed to the
// MySQL driver unchanged and must include parseTime=true.
type Config struct {
	DSN                string
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
}

// NewClient connects and creates the table.
func NewClient(cfg *Config) (*Client, error) {
	if err := storage.ValidateIdentifier(cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewOceanBaseClient: embedding dimension is required")
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
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
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL,
			document LONGTEXT NOT NULL,
			metadata JSON,
			user_id VARCHAR(128),
			agent_id VARCHAR(128),
			run_id VARCHAR(128),
			hash VARCHAR(32),
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6),
			INDEX idx_owner (user_id, agent_id, run_id)
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
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
		(id, user_id, agent_id, run_id, document, hash, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	return c.withTx(ctx, func(tx *sql.Tx) error {
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
				vectorToString(m.Embedding),
				metadataJSON,
				createdAt.UTC(),
				nullTime(m.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("Insert: memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Update rewrites document, hash, embedding and updated_at by id.
func (c *Client) Update(ctx context.Context, memories []*storage.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET document = ?, hash = ?, embedding = ?, updated_at = COALESCE(?, updated_at)
		WHERE id = ?
	`, c.collectionName)

	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range memories {
			_, err := tx.ExecContext(ctx, query,
				m.Content, m.Hash, vectorToString(m.Embedding), nullTime(m.UpdatedAt), m.ID)
			if err != nil {
				return fmt.Errorf("Update: memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Search ranks rows within scope by cosine distance.
func (c *Client) Search(ctx context.Context, embedding []float32, scope storage.Scope, limit int) ([]*storage.SearchResult, error) {
	whereClause, filterArgs := buildWhereClause(scope)
	args := append([]interface{}{vectorToString(embedding)}, filterArgs...)

	query := fmt.Sprintf(`
		SELECT %s, cosine_distance(embedding, ?) AS distance
		FROM %s
		%s
		ORDER BY distance ASC, id ASC
	`, selectColumns, c.collectionName, whereClause)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.SearchResult
	for rows.Next() {
		var distance float64
		m, err := scanMemory(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		results = append(results, &storage.SearchResult{Memory: m, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	storage.SortResults(results)
	return results, nil
}

// List returns memories within scope ordered by id.
func (c *Client) List(ctx context.Context, scope storage.Scope, limit int) ([]*storage.Memory, error) {
	whereClause, args := buildWhereClause(scope)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY id`, selectColumns, c.collectionName, whereClause)
	if limit > 0 {
		query += " LIMIT ?"
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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, c.collectionName)
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
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.collectionName)
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

// CreateIndex builds a native vector index using the cosine metric.
func (c *Client) CreateIndex(ctx context.Context, cfg *storage.IndexConfig) error {
	name := cfg.IndexName
	if name == "" {
		name = "vidx_" + c.collectionName
	}
	if err := storage.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("CreateIndex: %w", err)
	}

	var query string
	switch cfg.IndexType {
	case storage.IndexTypeHNSW:
		params := storage.HNSWParams{M: 16, EfConstruction: 200}
		if cfg.HNSWParams != nil {
			params = *cfg.HNSWParams
		}
		query = fmt.Sprintf(`
			CREATE VECTOR INDEX %s ON %s (embedding) WITH (
				distance = cosine,
				type = hnsw,
				lib = vsag,
				m = %d,
				ef_construction = %d
			)`, name, c.collectionName, params.M, params.EfConstruction)
	case storage.IndexTypeIVFFlat:
		lists := 128
		if cfg.IVFParams != nil {
			lists = cfg.IVFParams.Lists
		}
		query = fmt.Sprintf(`
			CREATE VECTOR INDEX %s ON %s (embedding) WITH (
				distance = cosine,
				type = ivf_flat,
				nlist = %d
			)`, name, c.collectionName, lists)
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

func (c *Client) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
