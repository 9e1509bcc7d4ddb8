package storage

import "context"

// VectorIndexType is the kind of approximate index a backend can build.
type VectorIndexType string

const (
	IndexTypeHNSW    VectorIndexType = "HNSW"
	IndexTypeIVFFlat VectorIndexType = "IVF_FLAT"
)

// HNSWParams configures an HNSW index.
type HNSWParams struct {
	M              int
	EfConstruction int
}

// IVFParams configures an IVF index.
type IVFParams struct {
	Lists int
}

// IndexConfig describes the vector index to create on the embedding column.
type IndexConfig struct {
	IndexName  string
	IndexType  VectorIndexType
	HNSWParams *HNSWParams
	IVFParams  *IVFParams
}

// Indexer is implemented by backends that can build an approximate vector
// index. Building an index never changes the Search contract.
type Indexer interface {
	CreateIndex(ctx context.Context, cfg *IndexConfig) error
}
