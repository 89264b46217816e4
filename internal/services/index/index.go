// Package index provides the in-memory vector index used for similarity
// retrieval over document chunks.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// entry pairs a chunk with its embedding. Entries keep the chunk's original
// position so equal similarity scores resolve deterministically.
type entry struct {
	vector []float32
	chunk  models.Chunk
}

// VectorIndex is built once over a document set and never mutated afterwards;
// provider or document changes mark it stale and the owner rebuilds. Retrieve
// is a pure read and safe for concurrent callers.
type VectorIndex struct {
	mu          sync.RWMutex
	entries     []entry
	providerTag string
	stale       bool
}

// Build embeds every chunk with the provider and returns the ready index.
// The providerTag records which provider and embedding model produced the
// vectors so the owner can detect configuration drift.
func Build(ctx context.Context, chunks []models.Chunk, embedder interfaces.AIProvider, providerTag string) (*VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, &models.EmptyCorpusError{}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("embedding document set: %w", err)}
	}
	if len(vectors) != len(chunks) {
		return nil, &models.RetrievalError{Err: fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	entries := make([]entry, len(chunks))
	for i := range chunks {
		if len(vectors[i]) == 0 {
			return nil, &models.RetrievalError{Err: fmt.Errorf("empty embedding for chunk %d", i)}
		}
		entries[i] = entry{vector: vectors[i], chunk: chunks[i]}
	}

	return &VectorIndex{entries: entries, providerTag: providerTag}, nil
}

// Retrieve embeds the query and returns the min(k, Len) most similar chunks,
// highest similarity first. Equal scores keep original chunk order.
func (ix *VectorIndex) Retrieve(ctx context.Context, query string, embedder interfaces.AIProvider, k int) ([]models.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	queryVec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("embedding query: %w", err)}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		position   int
		similarity float64
	}
	scores := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		if len(e.vector) != len(queryVec) {
			return nil, &models.RetrievalError{Err: fmt.Errorf("embedding dimension mismatch: query %d, index %d", len(queryVec), len(e.vector))}
		}
		scores[i] = scored{position: i, similarity: cosineSimilarity(queryVec, e.vector)}
	}

	// Stable sort keeps ascending chunk position for tied scores.
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].similarity > scores[b].similarity
	})

	if k > len(scores) {
		k = len(scores)
	}
	result := make([]models.Chunk, k)
	for i := 0; i < k; i++ {
		result[i] = ix.entries[scores[i].position].chunk
	}
	return result, nil
}

// Len returns the number of indexed chunks.
func (ix *VectorIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// ProviderTag returns the provider:model tag recorded at build time.
func (ix *VectorIndex) ProviderTag() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.providerTag
}

// MarkStale flags the index for rebuild after a provider, credential, or
// document change.
func (ix *VectorIndex) MarkStale() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.stale = true
}

// Stale reports whether the index must be rebuilt before the next retrieval.
func (ix *VectorIndex) Stale() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stale
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Zero-magnitude vectors score zero rather than dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
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
