package oceanbase

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnet/memnet-go/pkg/storage"
	"github.com/memnet/memnet-go/pkg/storage/storagetest"
)

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -0.25, 3}
	s := vectorToString(in)
	assert.Equal(t, "[0.1,-0.25,3]", s)

	out, err := stringToVector(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := stringToVector("[]")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = stringToVector("[1,x]")
	assert.Error(t, err)
}

func TestBuildWhereClause(t *testing.T) {
	clause, args := buildWhereClause(storage.Scope{UserID: storage.Some("u1"), RunID: storage.Some("r1")})
	assert.Equal(t, "WHERE user_id = ? AND run_id = ?", clause)
	assert.Equal(t, []interface{}{"u1", "r1"}, args)

	clause, args = buildWhereClause(storage.Scope{})
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

// Requires an OceanBase 4.3+ server, e.g.
// OCEANBASE_TEST_DSN="root@tcp(127.0.0.1:2881)/test?parseTime=true&loc=UTC".
func TestContract(t *testing.T) {
	dsn := os.Getenv("OCEANBASE_TEST_DSN")
	if dsn == "" {
		t.Skip("OCEANBASE_TEST_DSN not set")
	}
	n := 0
	storagetest.Run(t, func(t *testing.T) storage.VectorStore {
		n++
		client, err := NewClient(&Config{
			DSN:                dsn,
			CollectionName:     "memnet_contract_" + string(rune('a'+n)),
			EmbeddingModelDims: storagetest.Dims,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = client.db.Exec("DROP TABLE " + client.collectionName)
			_ = client.Close()
		})
		return client
	})
}
