// Package semantic indexes chat messages so earlier turns can be found by
// meaning. Entries carry an embedding when an Embedder is configured and
// fall back to keyword matching otherwise. Every entry belongs to a scope,
// and a search only ever sees entries of the scope it asks for.
package semantic

import (
	"context"
	"errors"
	"math"
	"time"
)

// ChatHistoryCollection holds user messages indexed by the conversation layer.
const ChatHistoryCollection = "chat_history"

var ErrScopeRequired = errors.New("semantic scope is required")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Document struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Scope      string            `json:"scope"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Match struct {
	Document
	Score float64 `json:"score"`
}

type Store interface {
	Add(ctx context.Context, collection, scope, content string, metadata map[string]string) (string, error)
	Search(ctx context.Context, collection, scope, text string, limit int) ([]Match, error)
}

// CosineSimilarity returns 0 for empty or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
