// Package resilience 提供 LLM 调用的韧性模式：限流、熔断器与指数退避重试。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kart-io/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/httpclient"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（包括首次调用）。
	MaxAttempts int
	// InitialDelay 初始延迟时间。
	InitialDelay time.Duration
	// MaxDelay 最大延迟时间。
	MaxDelay time.Duration
	// Multiplier 延迟倍增因子。
	Multiplier float64
	// Retryable 可重试的错误判断函数，为空时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// MaxRequests 半开状态允许通过的请求数。
	MaxRequests uint32
	// Interval 关闭状态下清零计数的周期。
	Interval time.Duration
	// Timeout 打开状态持续时间。
	Timeout time.Duration
	// MinRequests 计算失败率前要求的最少请求数。
	MinRequests uint32
	// FailureRatio 触发熔断的失败率。
	FailureRatio float64
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  5,
		Interval:     10 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// Guard 组合限流器与熔断器，保护一个下游供应商。
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard 创建保护器。rps <= 0 表示不限流。onOpen 在熔断器打开时调用，可为空。
func NewGuard(name string, rps float64, burst int, cfg BreakerConfig, onOpen func(name string)) *Guard {
	g := &Guard{name: name}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// 限流和调用方取消不代表下游故障
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, llm.ErrRateLimited) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("llm circuit breaker state changed",
				"provider", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && onOpen != nil {
				onOpen(name)
			}
		},
	})
	return g
}

// Do 在限流与熔断保护下执行 fn。熔断器拒绝时返回 llm.ErrUnavailable。
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := g.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", g.name, llm.ErrUnavailable, err)
	}
	return err
}

// State 返回熔断器当前状态。
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// RetryWithBackoff 使用指数退避重试函数。
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	delay := config.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= config.MaxAttempts {
			logger.Warnw("max retry attempts reached", "attempts", attempt, "error", err.Error())
			return fmt.Errorf("max retry attempts (%d) reached: %w", config.MaxAttempts, err)
		}

		logger.Debugw("retrying after delay", "attempt", attempt, "delay", delay, "error", err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
}

// IsRetryableError 判断错误是否可重试：网络错误、限流、408 与 5xx 响应。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, llm.ErrRateLimited) {
		return true
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 408 || se.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
