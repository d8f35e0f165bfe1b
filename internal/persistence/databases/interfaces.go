// Package databases holds storage-backend implementations used by the
// Context Manager (C6) and the RAG tool (C4).
package databases

import "context"

// VectorResult represents a single nearest-neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // similarity; higher is closer
	Metadata map[string]string
}

// VectorStore is the minimum interface a pluggable vector store backend
// implements, consumed by internal/tools/rag.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}
