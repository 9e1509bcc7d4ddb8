package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

func TestMemoryError(t *testing.T) {
	originalErr := errors.New("original error")

	err := memnet.NewMemoryError("Get", originalErr)
	assert.Equal(t, "memnet: Get: original error", err.Error())
	assert.ErrorIs(t, err, originalErr)

	staged := &memnet.MemoryError{Op: "Add", Stage: memnet.StageEmbed, Err: memnet.ErrEmbeddingFailed}
	assert.Equal(t, "memnet: Add: embed: embedding generation failed", staged.Error())
	assert.ErrorIs(t, staged, memnet.ErrEmbeddingFailed)

	var memErr *memnet.MemoryError
	assert.True(t, errors.As(error(staged), &memErr))
	assert.Equal(t, memnet.StageEmbed, memErr.Stage)
}

func TestNewMemoryError_Nil(t *testing.T) {
	assert.NoError(t, memnet.NewMemoryError("Add", nil))
}
