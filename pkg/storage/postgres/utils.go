package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/memnet/memnet-go/pkg/storage"
)

const selectColumns = `id, user_id, agent_id, run_id, content, hash, embedding, metadata, created_at, updated_at`

// buildWhereClause builds a WHERE clause starting from $1.
func buildWhereClause(scope storage.Scope) (string, []interface{}) {
	return buildWhereClauseWithOffset(scope, 1)
}

// buildWhereClauseWithOffset builds a WHERE clause whose placeholders start
// at startIndex.
func buildWhereClauseWithOffset(scope storage.Scope, startIndex int) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argIndex := startIndex
	for _, f := range []struct {
		column string
		value  storage.OptString
	}{
		{"user_id", scope.UserID},
		{"agent_id", scope.AgentID},
		{"run_id", scope.RunID},
	} {
		if v, ok := f.value.Get(); ok {
			conditions = append(conditions, fmt.Sprintf("%s = $%d", f.column, argIndex))
			args = append(args, v)
			argIndex++
		}
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans selectColumns followed by any extra destinations.
func scanMemory(row rowScanner, extra ...interface{}) (*storage.Memory, error) {
	var (
		m                      storage.Memory
		userID, agentID, runID sql.NullString
		hash                   sql.NullString
		embedding              pgvector.Vector
		metadata               []byte
		updatedAt              sql.NullTime
	)
	dest := []interface{}{
		&m.ID, &userID, &agentID, &runID, &m.Content, &hash,
		&embedding, &metadata, &m.CreatedAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	m.Scope = storage.Scope{
		UserID:  storage.OptString{Value: userID.String, Valid: userID.Valid},
		AgentID: storage.OptString{Value: agentID.String, Valid: agentID.Valid},
		RunID:   storage.OptString{Value: runID.String, Valid: runID.Valid},
	}
	m.Hash = hash.String
	m.Embedding = embedding.Slice()
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		m.UpdatedAt = &t
	}
	return &m, nil
}

func nullString(o storage.OptString) sql.NullString {
	return sql.NullString{String: o.Value, Valid: o.Valid}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
