package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
)

// 健康状态。
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ServiceConfig 在线问答配置。
type ServiceConfig struct {
	// TopK 检索返回的分块数。
	TopK int
	// Threshold 相似度阈值。
	Threshold float64
	// Version 健康检查中报告的版本号。
	Version string
	// HealthTimeout 单个组件检查的超时。
	HealthTimeout time.Duration
}

// DefaultServiceConfig 返回默认配置。
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		TopK:          5,
		Threshold:     0.3,
		Version:       "1.0.0",
		HealthTimeout: 5 * time.Second,
	}
}

// Service 组合检索、生成与缓存。
type Service struct {
	cfg       ServiceConfig
	retriever *Retriever
	generator *Generator
	cache     *QueryCache
	embedder  *Embedder
	store     store.VectorStore
	metrics   *metrics.Metrics

	// llmState 返回 LLM 熔断器状态，为 nil 时视为正常。
	llmState func() string
}

// ServiceOption 配置 Service。
type ServiceOption func(*Service)

// WithQueryCache 启用问答缓存。
func WithQueryCache(c *QueryCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithLLMState 设置 LLM 熔断器状态来源。
func WithLLMState(fn func() string) ServiceOption {
	return func(s *Service) { s.llmState = fn }
}

// NewService 创建问答服务。
func NewService(cfg ServiceConfig, embedder *Embedder, vectorStore store.VectorStore, generator *Generator, m *metrics.Metrics, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:       cfg,
		retriever: NewRetriever(embedder, vectorStore, m),
		generator: generator,
		embedder:  embedder,
		store:     vectorStore,
		metrics:   m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat 回答问题。生成失败不会返回错误，只有配置错误（如向量维度不符）会。
func (s *Service) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger.Infow("Processing chat query",
		"query", textutil.TruncateString(req.Message, 100),
		"conversation_id", conversationID,
	)

	if answer, ok := s.cache.Get(ctx, req.Message, req.UserMetadata); ok {
		s.metrics.RecordQuery(true)
		return &model.ChatResponse{Answer: answer.Answer, Sources: answer.Sources, ConversationID: conversationID}, nil
	}
	s.metrics.RecordQuery(false)

	chunks, err := s.retriever.Retrieve(ctx, req.Message, s.cfg.TopK, s.cfg.Threshold, req.UserMetadata)
	if err != nil {
		return nil, err
	}

	answer := s.generator.Answer(ctx, req.Message, chunks)
	s.cache.Set(ctx, req.Message, req.UserMetadata, answer)

	logger.Infow("Chat query completed",
		"conversation_id", conversationID,
		"num_sources", len(answer.Sources),
		"answer_length", len(answer.Answer),
	)
	return &model.ChatResponse{Answer: answer.Answer, Sources: answer.Sources, ConversationID: conversationID}, nil
}

// Search 直接返回向量检索结果，不调用 LLM。threshold 为 nil 时使用配置值。
func (s *Service) Search(ctx context.Context, query string, limit int, threshold *float64) (*model.SearchResponse, error) {
	th := s.cfg.Threshold
	if threshold != nil {
		th = *threshold
	}

	chunks, err := s.retriever.Retrieve(ctx, query, limit, th, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, model.SearchHit{
			Text:       c.Chunk.Text,
			Document:   c.Chunk.DocumentName,
			Page:       c.Chunk.PageNumber,
			Similarity: c.Similarity,
			Metadata:   c.Chunk.Metadata.Payload(),
		})
	}
	return &model.SearchResponse{Results: hits, Total: len(hits)}, nil
}

// Health 并发检查各组件，任一组件异常时整体为 degraded。
func (s *Service) Health(ctx context.Context) *model.HealthStatus {
	var (
		mu         sync.Mutex
		components = make(map[string]string, 3)
	)
	set := func(name, status string) {
		mu.Lock()
		components[name] = status
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, s.cfg.HealthTimeout)
		defer cancel()
		n, err := s.store.Count(cctx)
		if err != nil {
			set("database", componentError(err))
			return nil
		}
		set("database", fmt.Sprintf("ok (%d chunks)", n))
		return nil
	})
	g.Go(func() error {
		if _, err := s.embedder.Provider(); err != nil {
			set("embedding_model", componentError(err))
			return nil
		}
		set("embedding_model", "loaded")
		return nil
	})
	g.Go(func() error {
		if s.llmState != nil && s.llmState() == "open" {
			set("llm", "error: circuit breaker open")
			return nil
		}
		set("llm", "ok")
		return nil
	})
	_ = g.Wait()

	status := StatusHealthy
	for _, v := range components {
		if !strings.HasPrefix(v, "ok") && v != "loaded" {
			status = StatusDegraded
			break
		}
	}
	return &model.HealthStatus{Status: status, Components: components, Version: s.cfg.Version}
}

func componentError(err error) string {
	return "error: " + textutil.TruncateString(err.Error(), 50)
}
