package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/sony/gobreaker"

	"github.com/kart-io/budgetqa/internal/model"
)

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// MaxRequests 半开状态允许通过的请求数。
	MaxRequests uint32
	// Interval 关闭状态下清零计数的周期。
	Interval time.Duration
	// Timeout 打开状态持续时间，之后进入半开状态。
	Timeout time.Duration
	// MinRequests 触发熔断判定的最小请求数。
	MinRequests uint32
	// FailureRatio 触发熔断的失败率。
	FailureRatio float64
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     30 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerStore 为向量存储加上熔断保护。打开状态下直接返回 ErrUnavailable。
type BreakerStore struct {
	next    VectorStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore 创建带熔断的存储。onOpen 在熔断器打开时调用，可为 nil。
func NewBreakerStore(next VectorStore, cfg BreakerConfig, onOpen func()) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "vector-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// 维度不匹配与调用方取消不代表存储故障。
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrDimensionMismatch) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && onOpen != nil {
				onOpen()
			}
		},
	}
	return &BreakerStore{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State 返回熔断器当前状态。
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	v, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}

// Upsert implements VectorStore.
func (b *BreakerStore) Upsert(ctx context.Context, chunks []model.EmbeddedChunk) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Upsert(ctx, chunks)
	})
	return err
}

// Search implements VectorStore.
func (b *BreakerStore) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]model.RetrievedChunk, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.Search(ctx, embedding, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.RetrievedChunk), nil
}

// DeleteByDocument implements VectorStore.
func (b *BreakerStore) DeleteByDocument(ctx context.Context, documentName string) (int64, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.DeleteByDocument(ctx, documentName)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Count implements VectorStore.
func (b *BreakerStore) Count(ctx context.Context) (int64, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.Count(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Close implements VectorStore.
func (b *BreakerStore) Close(ctx context.Context) error {
	return b.next.Close(ctx)
}

var _ VectorStore = (*BreakerStore)(nil)
