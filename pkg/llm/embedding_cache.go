package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// CacheStore 缓存后端，pkg/component/redis.Client 实现该接口。
type CacheStore interface {
	// Get 返回缓存值，未命中时 ok 为 false。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入缓存值。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EmbeddingCacheConfig Embedding 缓存配置。
type EmbeddingCacheConfig struct {
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig 返回默认的 Embedding 缓存配置。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// CachedEmbeddingProvider 提供 Embedding 缓存功能的包装器。
// 缓存键包含模型名，切换模型不会读到旧维度的向量。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	store    CacheStore
	config   *EmbeddingCacheConfig

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding Provider，store 为空时直接透传。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, store CacheStore, config *EmbeddingCacheConfig) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		store:    store,
		config:   config,
	}
}

func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.provider.Name() + "\x00" + text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// lookup 读取缓存，任何错误都按未命中处理。
func (c *CachedEmbeddingProvider) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, ok, err := c.store.Get(ctx, c.cacheKey(text))
	if err != nil {
		logger.Warnw("embedding cache get failed, falling back to provider", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warnw("failed to unmarshal cached embedding", "error", err.Error())
		return nil, false
	}
	return embedding, true
}

func (c *CachedEmbeddingProvider) save(ctx context.Context, text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warnw("failed to marshal embedding for caching", "error", err.Error())
		return
	}
	if err := c.store.Set(ctx, c.cacheKey(text), data, c.config.TTL); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error())
	}
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if c.store == nil {
		return c.provider.EmbedSingle(ctx, text)
	}
	if embedding, ok := c.lookup(ctx, text); ok {
		c.hits.Add(1)
		return embedding, nil
	}
	c.misses.Add(1)

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.save(ctx, text, embedding)
	return embedding, nil
}

// Embed 批量生成 Embedding（带缓存），只为未命中的文本调用底层 provider。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.store == nil {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if embedding, ok := c.lookup(ctx, text); ok {
			embeddings[i] = embedding
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	c.hits.Add(int64(len(texts) - len(missTexts)))
	c.misses.Add(int64(len(missTexts)))

	if len(missTexts) == 0 {
		logger.Debugw("all embeddings from cache", "total", len(texts))
		return embeddings, nil
	}

	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, idx := range missIdx {
		embeddings[idx] = fresh[i]
		c.save(ctx, missTexts[i], fresh[i])
	}
	logger.Debugw("embedding cache batch", "total", len(texts), "uncached", len(missTexts))
	return embeddings, nil
}

// Name 返回底层 provider 的名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

// Stats 返回缓存命中与未命中次数。
func (c *CachedEmbeddingProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
