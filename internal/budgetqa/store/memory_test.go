package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/internal/model"
)

func embedded(id, doc string, vec []float32, md model.ChunkMetadata) model.EmbeddedChunk {
	return model.EmbeddedChunk{
		TaggedChunk: model.TaggedChunk{
			TextChunk: model.TextChunk{ChunkID: id, DocumentName: doc, PageNumber: 1, Text: "text of " + id},
			Metadata:  md,
		},
		Embedding:          vec,
		EmbeddingModel:     "test-embed",
		EmbeddingDimension: len(vec),
	}
}

func seed(t *testing.T, s VectorStore) {
	t.Helper()
	salaried := model.ChunkMetadata{UserTypes: []string{"salaried"}, Topics: []model.Topic{{Main: "Taxation", Sub: "Tax Policy"}}}
	farmer := model.ChunkMetadata{UserTypes: []string{"farmer"}, Topics: []model.Topic{{Main: "Economic Development", Sub: "Agriculture"}}}
	require.NoError(t, s.Upsert(context.Background(), []model.EmbeddedChunk{
		embedded("a.pdf_p1_c0", "a.pdf", []float32{1, 0, 0}, salaried),
		embedded("a.pdf_p1_c1", "a.pdf", []float32{0.8, 0.6, 0}, farmer),
		embedded("b.pdf_p1_c0", "b.pdf", []float32{0, 1, 0}, salaried),
		embedded("b.pdf_p2_c1", "b.pdf", []float32{0, 0, 1}, farmer),
	}))
}

func TestMemoryStore_Search(t *testing.T) {
	s, err := NewMemoryStore(3, "")
	require.NoError(t, err)
	seed(t, s)
	ctx := context.Background()

	t.Run("ordered by similarity with strict threshold", func(t *testing.T) {
		hits, err := s.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 5, Threshold: 0})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "a.pdf_p1_c0", hits[0].Chunk.ChunkID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
		assert.Equal(t, "a.pdf_p1_c1", hits[1].Chunk.ChunkID)
		assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)
	})

	t.Run("top k", func(t *testing.T) {
		hits, err := s.Search(ctx, []float32{1, 1, 1}, SearchOptions{TopK: 2, Threshold: -1})
		require.NoError(t, err)
		assert.Len(t, hits, 2)
		assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
	})

	t.Run("high threshold", func(t *testing.T) {
		hits, err := s.Search(ctx, []float32{0.6, 0.8, 0}, SearchOptions{TopK: 5, Threshold: 0.99})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("metadata filter", func(t *testing.T) {
		hits, err := s.Search(ctx, []float32{1, 0, 0}, SearchOptions{
			TopK: 5, Threshold: -1,
			Filter: map[string]any{"user_types": []any{"farmer"}},
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Equal(t, []string{"farmer"}, h.Chunk.Metadata.UserTypes)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestMemoryStore_UpsertReplacesAndDeletes(t *testing.T) {
	s, err := NewMemoryStore(3, "")
	require.NoError(t, err)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []model.EmbeddedChunk{
		embedded("a.pdf_p1_c0", "a.pdf", []float32{0, 1, 0}, model.ChunkMetadata{}),
	}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	deleted, err := s.DeleteByDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	n, _ = s.Count(ctx)
	assert.EqualValues(t, 2, n)

	err = s.Upsert(ctx, []model.EmbeddedChunk{embedded("c.pdf_p1_c0", "c.pdf", []float32{1, 0}, model.ChunkMetadata{})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_Snapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "snapshot.json")
	ctx := context.Background()

	s, err := NewMemoryStore(3, path)
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.Close(ctx))

	reloaded, err := NewMemoryStore(3, path)
	require.NoError(t, err)
	n, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	hits, err := reloaded.Search(ctx, []float32{0, 0, 1}, SearchOptions{TopK: 1, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.pdf_p2_c1", hits[0].Chunk.ChunkID)
	assert.Equal(t, "Agriculture", hits[0].Chunk.Metadata.Topics[0].Sub)

	_, err = NewMemoryStore(4, path)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

type failingStore struct {
	MemoryStore
	calls int
}

func (f *failingStore) Search(context.Context, []float32, SearchOptions) ([]model.RetrievedChunk, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerStore_OpensAfterFailures(t *testing.T) {
	inner := &failingStore{}
	opened := 0
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 3
	b := NewBreakerStore(inner, cfg, func() { opened++ })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Search(ctx, []float32{1}, SearchOptions{TopK: 1})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := b.Search(ctx, []float32{1}, SearchOptions{TopK: 1})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 1, opened)
}

func TestBreakerStore_PassesThrough(t *testing.T) {
	s, err := NewMemoryStore(3, "")
	require.NoError(t, err)
	b := NewBreakerStore(s, DefaultBreakerConfig(), nil)
	seed(t, b)

	hits, err := b.Search(context.Background(), []float32{0, 1, 0}, SearchOptions{TopK: 1, Threshold: 0.3})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.pdf_p1_c0", hits[0].Chunk.ChunkID)

	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}
