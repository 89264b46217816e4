package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// stubEmbedder returns canned vectors keyed by text.
type stubEmbedder struct {
	vectors    map[string][]float32
	embedErr   error
	queryErr   error
	docCalls   int
	queryCalls int
	dropLast   bool
}

var _ interfaces.AIProvider = (*stubEmbedder)(nil)

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.docCalls++
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, ok := s.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no stub vector for %q", t)
		}
		out = append(out, vec)
	}
	if s.dropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return vec, nil
}

func (s *stubEmbedder) Generate(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (s *stubEmbedder) Validate(ctx context.Context) error { return nil }
func (s *stubEmbedder) ProviderID() string                 { return "stub" }
func (s *stubEmbedder) DisplayName() string                { return "Stub" }
func (s *stubEmbedder) Close() error                       { return nil }

func testChunks() []models.Chunk {
	return []models.Chunk{
		{Content: "apples grow on trees", Metadata: models.ChunkMetadata{ChunkID: 0, ChunkCount: 3}},
		{Content: "bananas are yellow", Metadata: models.ChunkMetadata{ChunkID: 1, ChunkCount: 3}},
		{Content: "cherries ripen in summer", Metadata: models.ChunkMetadata{ChunkID: 2, ChunkCount: 3}},
	}
}

func testEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{
		"apples grow on trees":      {1, 0, 0},
		"bananas are yellow":        {0, 1, 0},
		"cherries ripen in summer":  {0.9, 0.1, 0},
		"fruit that grows on trees": {1, 0, 0},
	}}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	_, err := Build(context.Background(), nil, testEmbedder(), "stub:test")

	var emptyErr *models.EmptyCorpusError
	require.Error(t, err)
	assert.True(t, errors.As(err, &emptyErr))
}

func TestBuild_Success(t *testing.T) {
	embedder := testEmbedder()

	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, "stub:test", ix.ProviderTag())
	assert.False(t, ix.Stale())
	assert.Equal(t, 1, embedder.docCalls)
}

func TestBuild_EmbedFailure(t *testing.T) {
	embedder := testEmbedder()
	embedder.embedErr = errors.New("backend unavailable")

	_, err := Build(context.Background(), testChunks(), embedder, "stub:test")

	var retrievalErr *models.RetrievalError
	require.Error(t, err)
	assert.True(t, errors.As(err, &retrievalErr))
}

func TestBuild_VectorCountMismatch(t *testing.T) {
	embedder := testEmbedder()
	embedder.dropLast = true

	_, err := Build(context.Background(), testChunks(), embedder, "stub:test")

	var retrievalErr *models.RetrievalError
	require.Error(t, err)
	assert.True(t, errors.As(err, &retrievalErr))
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	chunks, err := ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// Query vector matches apples exactly, cherries closely, bananas not.
	assert.Equal(t, "apples grow on trees", chunks[0].Content)
	assert.Equal(t, "cherries ripen in summer", chunks[1].Content)
	assert.Equal(t, "bananas are yellow", chunks[2].Content)
}

func TestRetrieve_Deterministic(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	first, err := ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 3)
	require.NoError(t, err)
	second, err := ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 3)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content, "position %d", i)
	}
}

func TestRetrieve_TiesKeepChunkOrder(t *testing.T) {
	chunks := []models.Chunk{
		{Content: "first", Metadata: models.ChunkMetadata{ChunkID: 0, ChunkCount: 3}},
		{Content: "second", Metadata: models.ChunkMetadata{ChunkID: 1, ChunkCount: 3}},
		{Content: "third", Metadata: models.ChunkMetadata{ChunkID: 2, ChunkCount: 3}},
	}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"first":  {1, 1},
		"second": {1, 1},
		"third":  {1, 1},
		"query":  {1, 1},
	}}

	ix, err := Build(context.Background(), chunks, embedder, "stub:test")
	require.NoError(t, err)

	got, err := ix.Retrieve(context.Background(), "query", embedder, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)
}

func TestRetrieve_ClampsK(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	chunks, err := ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 100)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestRetrieve_RejectsBadInput(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	_, err = ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 0)
	assert.Error(t, err)

	_, err = ix.Retrieve(context.Background(), "   ", embedder, 3)
	assert.Error(t, err)
}

func TestRetrieve_QueryEmbedFailure(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	embedder.queryErr = errors.New("backend unavailable")
	_, err = ix.Retrieve(context.Background(), "fruit that grows on trees", embedder, 3)

	var retrievalErr *models.RetrievalError
	require.Error(t, err)
	assert.True(t, errors.As(err, &retrievalErr))
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	embedder.vectors["short query"] = []float32{1}
	_, err = ix.Retrieve(context.Background(), "short query", embedder, 3)

	var retrievalErr *models.RetrievalError
	require.Error(t, err)
	assert.True(t, errors.As(err, &retrievalErr))
}

func TestMarkStale(t *testing.T) {
	embedder := testEmbedder()
	ix, err := Build(context.Background(), testChunks(), embedder, "stub:test")
	require.NoError(t, err)

	assert.False(t, ix.Stale())
	ix.MarkStale()
	assert.True(t, ix.Stale())
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{name: "identical vectors", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal vectors", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite vectors", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
