package oceanbase

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/memnet/memnet-go/pkg/storage"
)

const selectColumns = `id, user_id, agent_id, run_id, document, hash, embedding, metadata, created_at, updated_at`

// vectorToString converts a vector to the VECTOR literal format.
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
func vectorToString(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// stringToVector parses a VECTOR literal.
func stringToVector(s string) ([]float32, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return []float32{}, nil
	}
	parts := strings.Split(s, ",")
	result := make([]float32, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		result[i] = float32(val)
	}
	return result, nil
}

// buildWhereClause turns the present scope fields into equality conditions.
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

func scanMemory(row rowScanner, extra ...interface{}) (*storage.Memory, error) {
	var (
		m                      storage.Memory
		userID, agentID, runID sql.NullString
		hash                   sql.NullString
		embeddingStr           string
		metadata               []byte
		updatedAt              sql.NullTime
	)
	dest := []interface{}{
		&m.ID, &userID, &agentID, &runID, &m.Content, &hash,
		&embeddingStr, &metadata, &m.CreatedAt, &updatedAt,
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
	emb, err := stringToVector(embeddingStr)
	if err != nil {
		return nil, err
	}
	m.Embedding = emb
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
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
