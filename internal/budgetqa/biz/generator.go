package biz

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
	"github.com/kart-io/budgetqa/pkg/llm"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// MaxContextChunks 作为上下文的最多分块数。
	MaxContextChunks int
	// RetryBackoff 限流后重试前的等待时间。
	RetryBackoff time.Duration
	// ExcerptLength 来源摘录的最大字符数。
	ExcerptLength int
}

// DefaultGeneratorConfig 返回默认配置。
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxContextChunks: 3,
		RetryBackoff:     2 * time.Second,
		ExcerptLength:    200,
	}
}

// Generator 根据检索结果生成带引用的答案。
type Generator struct {
	chat    llm.ChatProvider
	cfg     GeneratorConfig
	metrics *metrics.Metrics
}

// NewGenerator 创建生成器。
func NewGenerator(chat llm.ChatProvider, cfg GeneratorConfig, m *metrics.Metrics) *Generator {
	return &Generator{chat: chat, cfg: cfg, metrics: m}
}

// Answer 生成答案，从不返回错误：生成失败时答案为 FallbackAnswer。
func (g *Generator) Answer(ctx context.Context, question string, chunks []model.RetrievedChunk) model.Answer {
	top := g.selectContext(chunks)

	var prompt string
	if len(top) == 0 {
		logger.Warnw("No context found for query", "query", textutil.TruncateString(question, 100))
		prompt = NoContextPrompt(question)
	} else {
		prompt = ContextPrompt(question, top)
	}

	answer := g.complete(ctx, llm.BuildMessages(prompt, SystemPrompt))

	sources := make([]model.Source, 0, len(top))
	for _, c := range top {
		sources = append(sources, model.Source{
			Document:   c.Chunk.DocumentName,
			Page:       c.Chunk.PageNumber,
			Similarity: textutil.Round(c.Similarity, 3),
			Excerpt:    textutil.Excerpt(c.Chunk.Text, g.cfg.ExcerptLength),
		})
	}
	return model.Answer{Answer: answer, Sources: sources}
}

// selectContext 按相似度降序保留前 MaxContextChunks 个分块。
func (g *Generator) selectContext(chunks []model.RetrievedChunk) []model.RetrievedChunk {
	sorted := make([]model.RetrievedChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})
	if g.cfg.MaxContextChunks > 0 && len(sorted) > g.cfg.MaxContextChunks {
		sorted = sorted[:g.cfg.MaxContextChunks]
	}
	return sorted
}

type attemptState int

const (
	stateAttempting attemptState = iota
	stateExhausted
)

// complete 两状态重试：首次调用被限流时等待 RetryBackoff 后重试一次，
// 其余失败或重试再失败都进入 Exhausted 并返回 FallbackAnswer。
func (g *Generator) complete(ctx context.Context, messages []llm.Message) string {
	state := stateAttempting
	retried := false

	for state == stateAttempting {
		start := time.Now()
		text, err := g.chat.Chat(ctx, messages)
		g.metrics.RecordLLMCall(time.Since(start), err)
		if err == nil {
			logger.Infow("Chat completion generated",
				"provider", g.chat.Name(),
				"response_length", len(text),
				"retried", retried,
			)
			return text
		}

		if retried || !errors.Is(err, llm.ErrRateLimited) {
			logger.Errorw("Chat completion failed", "error", err.Error(), "retried", retried)
			state = stateExhausted
			break
		}

		logger.Warnw("Rate limit hit, retrying once", "backoff", g.cfg.RetryBackoff.String())
		g.metrics.RecordLLMRetry()
		retried = true
		if !sleepCtx(ctx, g.cfg.RetryBackoff) {
			logger.Warnw("Retry abandoned, request cancelled", "error", ctx.Err())
			state = stateExhausted
		}
	}

	g.metrics.RecordLLMFallback()
	return FallbackAnswer
}

// sleepCtx 等待 d，ctx 先结束时返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
