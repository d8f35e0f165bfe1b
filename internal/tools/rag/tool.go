// Package ragtool implements the RAG Tool (C4): a single tool backed by a
// vector store that turns a natural-language query into a relevance-ordered
// block of retrieved document snippets.
package ragtool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ragorchestrator/internal/persistence/databases"
)

const defaultMaxResults = 5

// Embedder produces the query vector handed to the vector store. Kept as a
// narrow interface so the tool doesn't care whether embeddings come from an
// OpenAI-compatible endpoint or a local model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Tool is the rag_search tool (C4), backed by a databases.VectorStore.
type Tool struct {
	store    databases.VectorStore
	embedder Embedder
}

// New constructs the RAG tool.
func New(store databases.VectorStore, embedder Embedder) *Tool {
	return &Tool{store: store, embedder: embedder}
}

func (t *Tool) Name() string { return "rag_search" }

func (t *Tool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Search the knowledge base for documents relevant to a query.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language search query.",
				},
				"maxResults": map[string]any{
					"type":        "integer",
					"description": "Maximum number of documents to return (default 5).",
				},
			},
		},
	}
}

type request struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

type result struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Call embeds the query, runs a similarity search, and formats the hits in
// decreasing relevance order. It never returns a Go error across this
// boundary: failures are reported as result{Success:false} per the registry's
// never-throw contract.
func (t *Tool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return result{Success: false, Error: "invalid arguments"}, nil
	}
	if strings.TrimSpace(req.Query) == "" {
		return result{Success: false, Error: "invalid arguments"}, nil
	}
	max := req.MaxResults
	if max <= 0 {
		max = defaultMaxResults
	}

	vec, err := t.embedder.Embed(ctx, req.Query)
	if err != nil {
		return result{Success: false, Error: fmt.Sprintf("embedding failed: %v", err)}, nil
	}

	hits, err := t.store.SimilaritySearch(ctx, vec, max, nil)
	if err != nil {
		return result{Success: false, Error: fmt.Sprintf("vector store search failed: %v", err)}, nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		text := h.Metadata["text"]
		if text == "" {
			text = h.Metadata["content"]
		}
		// Score is a cosine similarity in [-1,1] for a normalized metric,
		// which is exactly the "1 - distance" relevance the spec asks for.
		fmt.Fprintf(&sb, "Document: %s\n(Relevance: %.4f)", text, h.Score)
	}

	return result{Success: true, Result: sb.String()}, nil
}
