package ragtool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"ragorchestrator/internal/persistence/databases"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeVectorStore struct {
	hits []databases.VectorResult
	err  error
}

func (f fakeVectorStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	return nil
}
func (f fakeVectorStore) Delete(ctx context.Context, id string) error { return nil }
func (f fakeVectorStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]databases.VectorResult, error) {
	return f.hits, f.err
}

func TestCallRejectsEmptyQuery(t *testing.T) {
	tool := New(fakeVectorStore{}, fakeEmbedder{})
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":""}`))
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	r := out.(result)
	if r.Success {
		t.Fatal("expected Success=false for an empty query")
	}
}

func TestCallNeverReturnsGoErrorOnEmbeddingFailure(t *testing.T) {
	tool := New(fakeVectorStore{}, fakeEmbedder{err: errors.New("embedder down")})
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"hello"}`))
	if err != nil {
		t.Fatalf("expected the never-throw contract to hold, got %v", err)
	}
	r := out.(result)
	if r.Success || !strings.Contains(r.Error, "embedding failed") {
		t.Fatalf("expected an embedding-failure result, got %+v", r)
	}
}

func TestCallNeverReturnsGoErrorOnStoreFailure(t *testing.T) {
	tool := New(fakeVectorStore{err: errors.New("store down")}, fakeEmbedder{vec: []float32{0.1}})
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"hello"}`))
	if err != nil {
		t.Fatalf("expected the never-throw contract to hold, got %v", err)
	}
	r := out.(result)
	if r.Success || !strings.Contains(r.Error, "vector store search failed") {
		t.Fatalf("expected a store-failure result, got %+v", r)
	}
}

func TestCallOrdersHitsByDescendingRelevance(t *testing.T) {
	hits := []databases.VectorResult{
		{ID: "a", Score: 0.2, Metadata: map[string]string{"text": "low"}},
		{ID: "b", Score: 0.9, Metadata: map[string]string{"text": "high"}},
		{ID: "c", Score: 0.5, Metadata: map[string]string{"content": "mid"}},
	}
	tool := New(fakeVectorStore{hits: hits}, fakeEmbedder{vec: []float32{0.1}})
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"hello"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	r := out.(result)
	if !r.Success {
		t.Fatalf("expected success, got %+v", r)
	}
	first := strings.Index(r.Result, "high")
	second := strings.Index(r.Result, "mid")
	third := strings.Index(r.Result, "low")
	if !(first < second && second < third) {
		t.Fatalf("expected descending relevance order, got: %s", r.Result)
	}
}
