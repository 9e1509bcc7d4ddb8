// Package sqlite provides a SQLite implementation of storage.VectorStore.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-process deployments. Vectors are stored as JSON arrays in TEXT
// columns and similarity search computes cosine similarity in process over
// the rows that pass the owner filter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memnet/memnet-go/pkg/storage"
)

// Client implements storage.VectorStore using SQLite as the backend.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains configuration for creating a SQLite VectorStore.
type Config struct {
	// DBPath is the path to the SQLite database file. ":memory:" is allowed.
	DBPath string

	// CollectionName is the name of the table to use.
	CollectionName string

	// EmbeddingModelDims, when positive, is enforced on writes.
	EmbeddingModelDims int
}

// NewClient opens (and if needed creates) the database and its table.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("NewSQLiteClient: db path is required")
	}
	if err := storage.ValidateIdentifier(cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	dsn := cfg.DBPath
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
			}
		}
		dsn += "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
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
			id INTEGER PRIMARY KEY,
			user_id TEXT,
			agent_id TEXT,
			run_id TEXT,
			content TEXT NOT NULL,
			hash TEXT,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME
		)
	`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(user_id, agent_id, run_id)`,
		c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

func (c *Client) checkDims(m *storage.Memory) error {
	if c.dimensions > 0 && len(m.Embedding) != c.dimensions {
		return fmt.Errorf("memory %d has %d dimensions, want %d", m.ID, len(m.Embedding), c.dimensions)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("Insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range memories {
			if err := c.checkDims(m); err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			embeddingJSON, err := json.Marshal(m.Embedding)
			if err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			metadataJSON, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			createdAt := m.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			_, err = stmt.ExecContext(ctx,
				m.ID,
				nullString(m.Scope.UserID),
				nullString(m.Scope.AgentID),
				nullString(m.Scope.RunID),
				m.Content,
				m.Hash,
				string(embeddingJSON),
				string(metadataJSON),
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

// Update rewrites content, hash, embedding and updated_at by id. Rows that do
// not exist are skipped.
func (c *Client) Update(ctx context.Context, memories []*storage.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = ?, hash = ?, embedding = ?, updated_at = COALESCE(?, updated_at)
		WHERE id = ?
	`, c.collectionName)

	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("Update: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range memories {
			if err := c.checkDims(m); err != nil {
				return fmt.Errorf("Update: %w", err)
			}
			embeddingJSON, err := json.Marshal(m.Embedding)
			if err != nil {
				return fmt.Errorf("Update: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, m.Content, m.Hash, string(embeddingJSON), nullTime(m.UpdatedAt), m.ID); err != nil {
				return fmt.Errorf("Update: memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Search loads the rows within scope and ranks them by cosine similarity.
func (c *Client) Search(ctx context.Context, embedding []float32, scope storage.Scope, limit int) ([]*storage.SearchResult, error) {
	whereClause, args := buildWhereClause(scope)
	query := fmt.Sprintf(`SELECT %s FROM %s %s`, selectColumns, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.SearchResult
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		results = append(results, &storage.SearchResult{
			Memory: m,
			Score:  storage.CosineSimilarity(embedding, m.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return storage.TopK(results, limit), nil
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
