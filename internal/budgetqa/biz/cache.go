package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// QueryCacheConfig 问答缓存配置。
type QueryCacheConfig struct {
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 缓存问答结果。store 为 nil 时缓存关闭，所有操作为空操作。
type QueryCache struct {
	store llm.CacheStore
	cfg   QueryCacheConfig
}

// NewQueryCache 创建问答缓存。
func NewQueryCache(store llm.CacheStore, cfg QueryCacheConfig) *QueryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "budgetqa:query:"
	}
	return &QueryCache{store: store, cfg: cfg}
}

// Enabled 缓存是否可用。
func (c *QueryCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Key 由规范化后的问题与过滤条件生成缓存键。过滤条件按键排序序列化，顺序不影响结果。
func (c *QueryCache) Key(question string, filter map[string]any) string {
	h := sha256.New()
	h.Write([]byte(textutil.NormalizeQuery(question)))
	if len(filter) > 0 {
		if b, err := json.Marshal(filter); err == nil {
			h.Write([]byte{0})
			h.Write(b)
		}
	}
	return c.cfg.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get 读取缓存。未命中或读取失败都返回 false。
func (c *QueryCache) Get(ctx context.Context, question string, filter map[string]any) (*model.Answer, bool) {
	if !c.Enabled() {
		return nil, false
	}

	key := c.Key(question, filter)
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warnw("Query cache read failed", "key", key, "error", err.Error())
		return nil, false
	}
	if !found {
		logger.Debugw("Query cache miss", "key", key)
		return nil, false
	}

	var answer model.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		logger.Warnw("Corrupt query cache entry", "key", key, "error", err.Error())
		return nil, false
	}
	logger.Debugw("Query cache hit", "key", key)
	return &answer, true
}

// Set 写入缓存。兜底答复不缓存。
func (c *QueryCache) Set(ctx context.Context, question string, filter map[string]any, answer model.Answer) {
	if !c.Enabled() || answer.Answer == FallbackAnswer {
		return
	}

	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warnw("Failed to encode answer for cache", "error", err.Error())
		return
	}
	key := c.Key(question, filter)
	if err := c.store.Set(ctx, key, data, c.cfg.TTL); err != nil {
		logger.Warnw("Query cache write failed", "key", key, "error", err.Error())
	}
}
