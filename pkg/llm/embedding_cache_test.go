package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

type countingEmbedder struct {
	mockProvider
	batches [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	return c.mockProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingProvider_Embed(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "mock"}}
	cache := newMemoryCache()
	p := NewCachedEmbeddingProvider(inner, cache, nil)
	ctx := context.Background()

	_, err := p.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)

	got, err := p.Embed(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, inner.batches)

	hits, misses := p.Stats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 3, misses)
	assert.Len(t, cache.data, 3)
	for k := range cache.data {
		assert.Contains(t, k, "emb:")
	}
}

func TestCachedEmbeddingProvider_StoreErrorFallsBack(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "mock"}}
	cache := newMemoryCache()
	cache.err = errors.New("connection refused")
	p := NewCachedEmbeddingProvider(inner, cache, nil)

	v, err := p.EmbedSingle(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestCachedEmbeddingProvider_NilStore(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "mock"}}
	p := NewCachedEmbeddingProvider(inner, nil, nil)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 2)
	assert.Equal(t, "mock", p.Name())
}
