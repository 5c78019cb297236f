package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/httpclient"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestGuard_OpensAfterFailures(t *testing.T) {
	var opened []string
	cfg := DefaultBreakerConfig()
	g := NewGuard("groq", 0, 0, cfg, func(name string) { opened = append(opened, name) })
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, g.Do(ctx, func() error { return boom }), boom)
	}
	assert.Equal(t, "open", g.State())
	assert.Equal(t, []string{"groq"}, opened)

	called := false
	err := g.Do(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.False(t, called)
}

func TestGuard_RateLimitDoesNotTrip(t *testing.T) {
	g := NewGuard("groq", 0, 0, DefaultBreakerConfig(), nil)
	for i := 0; i < 5; i++ {
		err := g.Do(context.Background(), func() error { return fmt.Errorf("x: %w", llm.ErrRateLimited) })
		assert.ErrorIs(t, err, llm.ErrRateLimited)
	}
	assert.Equal(t, "closed", g.State())
}

func TestGuard_LimiterHonoursContext(t *testing.T) {
	g := NewGuard("slow", 0.001, 1, DefaultBreakerConfig(), nil)
	require.NoError(t, g.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Do(ctx, func() error { return nil }))
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("eventual success", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
			attempts++
			if attempts < 3 {
				return &httpclient.StatusError{StatusCode: 503}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("max attempts", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
			attempts++
			return llm.ErrRateLimited
		})
		assert.ErrorIs(t, err, llm.ErrRateLimited)
		assert.Equal(t, 3, attempts)
	})

	t.Run("not retryable", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
			attempts++
			return &httpclient.StatusError{StatusCode: 401}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastRetry()
		cfg.InitialDelay = time.Hour
		err := RetryWithBackoff(ctx, cfg, func() error {
			cancel()
			return llm.ErrRateLimited
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", llm.ErrRateLimited, true},
		{"unavailable", llm.ErrUnavailable, false},
		{"server error", &httpclient.StatusError{StatusCode: 502}, true},
		{"request timeout", &httpclient.StatusError{StatusCode: 408}, true},
		{"bad request", &httpclient.StatusError{StatusCode: 400}, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("decode failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

type countingChat struct {
	calls int
	err   error
}

func (c *countingChat) Chat(context.Context, []llm.Message) (string, error) { return "", c.err }
func (c *countingChat) Generate(context.Context, string, string) (string, error) {
	c.calls++
	return "answer", c.err
}
func (c *countingChat) Name() string { return "counting" }

func TestResilientChatProvider_NoRetry(t *testing.T) {
	inner := &countingChat{err: llm.ErrRateLimited}
	p := NewResilientChatProvider(inner, nil)

	_, err := p.Generate(context.Background(), "q", "")
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "counting", p.Name())
}
