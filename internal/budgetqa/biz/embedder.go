package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"golang.org/x/time/rate"

	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
	"github.com/kart-io/budgetqa/pkg/infra/pool"
	"github.com/kart-io/budgetqa/pkg/llm"
)

// EmbedderConfig 向量化配置。
type EmbedderConfig struct {
	// Model 写入分块记录的模型名称。
	Model string
	// Dimension 向量维度，整个语料生命周期内固定。
	Dimension int
	// BatchSize 每次调用供应商的文本数。
	BatchSize int
	// MaxChars 单条文本截断长度（字符）。
	MaxChars int
	// BatchesPerSecond 批次间节流，0 表示不限制。
	BatchesPerSecond float64
}

// DefaultEmbedderConfig 返回默认配置。
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Model:     "all-minilm",
		Dimension: 384,
		BatchSize: 100,
		MaxChars:  8000,
	}
}

// ProviderFactory 延迟创建 Embedding 供应商。
type ProviderFactory func() (llm.EmbeddingProvider, error)

// Embedder 批量生成向量。单条或单批失败时以零向量占位，维度不符是硬错误。
type Embedder struct {
	cfg     EmbedderConfig
	factory ProviderFactory
	pool    *pool.Pool
	limiter *rate.Limiter

	once     sync.Once
	provider llm.EmbeddingProvider
	initErr  error
}

// NewEmbedder 创建 Embedder。p 为 nil 时批次串行执行。
func NewEmbedder(factory ProviderFactory, cfg EmbedderConfig, p *pool.Pool) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	e := &Embedder{cfg: cfg, factory: factory, pool: p}
	if cfg.BatchesPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}
	return e
}

// Dimension 返回配置的向量维度。
func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// Model 返回模型名称。
func (e *Embedder) Model() string {
	return e.cfg.Model
}

// Provider 首次调用时创建供应商，之后复用同一实例。
func (e *Embedder) Provider() (llm.EmbeddingProvider, error) {
	e.once.Do(func() {
		e.provider, e.initErr = e.factory()
		if e.initErr == nil {
			logger.Infow("Embedding provider initialized",
				"provider", e.provider.Name(),
				"model", e.cfg.Model,
				"dimension", e.cfg.Dimension,
			)
		}
	})
	return e.provider, e.initErr
}

// EmbedQuery 为查询生成向量。与 EmbedTexts 不同，失败时返回错误而不是零向量。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	provider, err := e.Provider()
	if err != nil {
		return nil, err
	}
	vec, err := provider.EmbedSingle(ctx, textutil.TruncateString(text, e.cfg.MaxChars))
	if err != nil {
		return nil, err
	}
	if len(vec) != e.cfg.Dimension {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, configured %d",
			store.ErrDimensionMismatch, len(vec), e.cfg.Dimension)
	}
	return vec, nil
}

// EmbedTexts 按批生成向量，结果与输入一一对应。
// 只有供应商初始化失败、维度不符或 ctx 取消会返回错误。
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	provider, err := e.Provider()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var tasks []func(context.Context) error
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		tasks = append(tasks, func(ctx context.Context) error {
			return e.embedBatch(ctx, provider, texts[start:end], out[start:end], start/e.cfg.BatchSize)
		})
	}

	var errs []error
	if e.pool != nil {
		errs = e.pool.Run(ctx, tasks)
	} else {
		for _, task := range tasks {
			errs = append(errs, task(ctx))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatch 结果写入 dst，dst 与其他批次互不重叠。
func (e *Embedder) embedBatch(ctx context.Context, provider llm.EmbeddingProvider, texts []string, dst [][]float32, batch int) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var (
		inputs []string
		slots  []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			dst[i] = make([]float32, e.cfg.Dimension)
			continue
		}
		inputs = append(inputs, textutil.TruncateString(t, e.cfg.MaxChars))
		slots = append(slots, i)
	}
	if skipped := len(texts) - len(inputs); skipped > 0 {
		logger.Warnw("Empty texts replaced with zero vectors", "batch", batch, "count", skipped)
	}
	if len(inputs) == 0 {
		return nil
	}

	vectors, err := provider.Embed(ctx, inputs)
	if err == nil && len(vectors) != len(inputs) {
		err = fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(inputs))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Errorw("Embedding batch failed, using zero vectors",
			"batch", batch,
			"size", len(inputs),
			"error", err.Error(),
		)
		for _, slot := range slots {
			dst[slot] = make([]float32, e.cfg.Dimension)
		}
		return nil
	}

	for i, slot := range slots {
		if len(vectors[i]) != e.cfg.Dimension {
			return fmt.Errorf("%w: provider returned %d dimensions, configured %d",
				store.ErrDimensionMismatch, len(vectors[i]), e.cfg.Dimension)
		}
		dst[slot] = vectors[i]
	}
	return nil
}

// EmbedChunks 为分块生成向量。
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []model.TaggedChunk) ([]model.EmbeddedChunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := e.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]model.EmbeddedChunk, len(chunks))
	zero := 0
	for i, c := range chunks {
		if textutil.IsZeroVector(vectors[i]) {
			zero++
		}
		out[i] = model.EmbeddedChunk{
			TaggedChunk:        c,
			Embedding:          vectors[i],
			EmbeddingModel:     e.cfg.Model,
			EmbeddingDimension: len(vectors[i]),
		}
	}
	logger.Infow("Chunks embedded", "count", len(out), "zero_vectors", zero, "model", e.cfg.Model)
	return out, nil
}
