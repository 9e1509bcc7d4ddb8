// Package core provides the memnet client: the consolidation engine that
// turns conversations into deduplicated memories, and the read paths over
// them.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Facade failures wrap one of these inside a MemoryError,
// so callers match them with errors.Is.
var (
	ErrNotFound      = errors.New("memory not found")
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed is returned by NewClient when the vector store
	// cannot be opened or reached.
	ErrConnectionFailed = errors.New("connection failed")

	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrStorageOperation marks a failed index build. ErrLLMOperation marks
	// a failed extraction or merge call.
	ErrStorageOperation = errors.New("storage operation failed")
	ErrLLMOperation     = errors.New("llm operation failed")

	ErrClosed = errors.New("client is closed") // every operation after Close
)

// Pipeline stages reported in MemoryError.Stage.
const (
	StageExtract = "extract"
	StageEmbed   = "embed"
	StageSearch  = "search"
	StageMerge   = "merge"
	StageRerank  = "rerank"
	StageInsert  = "insert"
	StageUpdate  = "update"
	StageGet     = "get"
	StageList    = "list"
	StageDelete  = "delete"
	StageGraph   = "graph"
)

// MemoryError carries the failing operation and stage.
//
// Op names the client operation and Stage, when set, names the pipeline
// step whose external call failed, so a caller can tell an extraction
// failure from a store failure without parsing messages.
//
// Example:
//
//	err := &MemoryError{Op: "Add", Stage: StageEmbed, Err: ErrEmbeddingFailed}
//	// Error() returns: "memnet: Add: embed: embedding generation failed"
type MemoryError struct {
	Op    string
	Stage string // empty for failures outside the pipeline
	Err   error
}

func (e *MemoryError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("memnet: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("memnet: %s: %s: %v", e.Op, e.Stage, e.Err)
}

func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError wraps err with the operation name. A nil err stays nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

func stageError(op, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Stage: stage, Err: err}
}
