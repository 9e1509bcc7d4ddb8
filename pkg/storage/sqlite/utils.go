package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memnet/memnet-go/pkg/storage"
)

const selectColumns = `id, user_id, agent_id, run_id, content, hash, embedding, metadata, created_at, updated_at`

// buildWhereClause turns the present scope fields into equality conditions.
// Absent fields add no condition.
func buildWhereClause(scope storage.Scope) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	for _, f := range []struct {
		column string
		value  storage.OptString
	}{
		{"user_id", scope.UserID},
		{"agent_id", scope.AgentID},
		{"run_id", scope.RunID},
	} {
		if v, ok := f.value.Get(); ok {
			conditions = append(conditions, f.column+" = ?")
			args = append(args, v)
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

func scanMemory(row rowScanner) (*storage.Memory, error) {
	var (
		m                      storage.Memory
		userID, agentID, runID sql.NullString
		hash, metadataStr      sql.NullString
		embeddingStr           string
		updatedAt              sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&userID,
		&agentID,
		&runID,
		&m.Content,
		&hash,
		&embeddingStr,
		&metadataStr,
		&m.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Scope = storage.Scope{
		UserID:  optString(userID),
		AgentID: optString(agentID),
		RunID:   optString(runID),
	}
	m.Hash = hash.String
	if err := json.Unmarshal([]byte(embeddingStr), &m.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &m.Metadata); err != nil {
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

func optString(n sql.NullString) storage.OptString {
	return storage.OptString{Value: n.String, Valid: n.Valid}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
