package resilience

import (
	"context"

	"github.com/kart-io/budgetqa/pkg/llm"
)

// call 在 guard 内执行 fn；retry 非 nil 时对可重试错误按退避重试。
func call[T any](ctx context.Context, g *Guard, retry *RetryConfig, fn func() (T, error)) (T, error) {
	var out T
	attempt := func() error {
		return g.Do(ctx, func() error {
			v, err := fn()
			if err == nil {
				out = v
			}
			return err
		})
	}
	if retry == nil {
		return out, attempt()
	}
	return out, RetryWithBackoff(ctx, retry, attempt)
}

func defaultGuard(name string) *Guard {
	return NewGuard(name, 0, 0, DefaultBreakerConfig(), nil)
}

// ResilientEmbeddingProvider 给 Embedding 供应商加上限流、熔断和重试。
type ResilientEmbeddingProvider struct {
	llm.EmbeddingProvider
	retry *RetryConfig
	guard *Guard
}

// NewResilientEmbeddingProvider retry 或 guard 为 nil 时使用默认配置。
func NewResilientEmbeddingProvider(provider llm.EmbeddingProvider, retry *RetryConfig, guard *Guard) *ResilientEmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if guard == nil {
		guard = defaultGuard(provider.Name())
	}
	return &ResilientEmbeddingProvider{EmbeddingProvider: provider, retry: retry, guard: guard}
}

func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return call(ctx, r.guard, r.retry, func() ([][]float32, error) {
		return r.EmbeddingProvider.Embed(ctx, texts)
	})
}

func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return call(ctx, r.guard, r.retry, func() ([]float32, error) {
		return r.EmbeddingProvider.EmbedSingle(ctx, text)
	})
}

// ResilientChatProvider 给 Chat 供应商加上限流与熔断。
// 不重试：限流错误交给 Generator 的重试状态机处理。
type ResilientChatProvider struct {
	llm.ChatProvider
	guard *Guard
}

func NewResilientChatProvider(provider llm.ChatProvider, guard *Guard) *ResilientChatProvider {
	if guard == nil {
		guard = defaultGuard(provider.Name())
	}
	return &ResilientChatProvider{ChatProvider: provider, guard: guard}
}

func (r *ResilientChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return call(ctx, r.guard, nil, func() (string, error) {
		return r.ChatProvider.Chat(ctx, messages)
	})
}

func (r *ResilientChatProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return call(ctx, r.guard, nil, func() (string, error) {
		return r.ChatProvider.Generate(ctx, prompt, systemPrompt)
	})
}
