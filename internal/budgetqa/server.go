// Package budgetqa 组装预算问答服务与导入流水线。
package budgetqa

import (
	"context"
	"fmt"
	"runtime"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/biz"
	"github.com/kart-io/budgetqa/internal/budgetqa/handler"
	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	bqoptions "github.com/kart-io/budgetqa/internal/budgetqa/options"
	"github.com/kart-io/budgetqa/internal/budgetqa/router"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/pkg/component/milvus"
	"github.com/kart-io/budgetqa/pkg/component/redis"
	"github.com/kart-io/budgetqa/pkg/infra/app"
	"github.com/kart-io/budgetqa/pkg/infra/pool"
	"github.com/kart-io/budgetqa/pkg/infra/server"
	"github.com/kart-io/budgetqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/budgetqa/pkg/llm/gemini"
	_ "github.com/kart-io/budgetqa/pkg/llm/ollama"
	_ "github.com/kart-io/budgetqa/pkg/llm/openai"
	"github.com/kart-io/budgetqa/pkg/llm/resilience"
	cacheopts "github.com/kart-io/budgetqa/pkg/options/cache"
	llmopts "github.com/kart-io/budgetqa/pkg/options/llm"
	logopts "github.com/kart-io/budgetqa/pkg/options/logger"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
	milvusopts "github.com/kart-io/budgetqa/pkg/options/milvus"
	httpopts "github.com/kart-io/budgetqa/pkg/options/server/http"
)

// Name is the name of the application.
const Name = "budgetqa"

// Config contains the configuration of the question answering server.
type Config struct {
	HTTPOptions        *httpopts.Options
	MiddlewareOptions  *mwopts.Options
	LogOptions         *logopts.Options
	MilvusOptions      *milvusopts.Options
	EmbeddingOptions   *llmopts.ProviderOptions
	ChatOptions        *llmopts.ProviderOptions
	CacheOptions       *cacheopts.Options
	EmbedderOptions    *bqoptions.EmbeddingOptions
	RetrievalOptions   *bqoptions.RetrievalOptions
	GenerationOptions  *bqoptions.GenerationOptions
	VectorStoreOptions *bqoptions.VectorStoreOptions
}

// Server represents the question answering server.
type Server struct {
	srv     *server.Server
	cleanup []func(context.Context)
}

// components 服务与导入共用的基础组件。
type components struct {
	metrics  *metrics.Metrics
	store    store.VectorStore
	cache    *redis.Client
	embedder *biz.Embedder
	cleanup  []func(context.Context)
}

func (c *components) close(ctx context.Context) {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i](ctx)
	}
}

// initLogger 初始化全局日志。
func initLogger(opts *logopts.Options) error {
	if err := opts.Init(map[string]any{
		"service.name":    Name,
		"service.version": app.GetVersion(),
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newVectorStore 创建向量存储并包上熔断器。
func newVectorStore(ctx context.Context, c *components, vs *bqoptions.VectorStoreOptions,
	mo *milvusopts.Options, dim int,
) error {
	var inner store.VectorStore
	switch vs.Backend {
	case bqoptions.BackendMilvus:
		client, err := milvus.New(ctx, mo)
		if err != nil {
			return err
		}
		c.cleanup = append(c.cleanup, func(ctx context.Context) {
			if err := client.Close(ctx); err != nil {
				logger.Warnw("Failed to close milvus client", "error", err.Error())
			}
		})
		ms, err := store.NewMilvusStore(ctx, client, dim)
		if err != nil {
			return fmt.Errorf("failed to initialize milvus store: %w", err)
		}
		inner = ms
		logger.Infow("Milvus vector store initialized", "address", mo.Address, "collection", mo.Collection)
	default:
		ms, err := store.NewMemoryStore(dim, vs.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to initialize memory store: %w", err)
		}
		inner = ms
		logger.Infow("Memory vector store initialized", "snapshot", vs.SnapshotPath)
	}

	c.store = store.NewBreakerStore(inner, store.DefaultBreakerConfig(), c.metrics.RecordBreakerOpen)
	c.cleanup = append(c.cleanup, func(ctx context.Context) {
		if err := c.store.Close(ctx); err != nil {
			logger.Warnw("Failed to close vector store", "error", err.Error())
		}
	})
	return nil
}

// newCache 连接 redis，连接失败时降级为不缓存。
func newCache(ctx context.Context, c *components, opts *cacheopts.Options) {
	if opts == nil || !opts.Enabled {
		logger.Info("Cache is disabled")
		return
	}
	client, err := redis.New(ctx, opts.Redis)
	if err != nil {
		logger.Warnw("Failed to connect to redis, cache will be disabled", "error", err.Error())
		return
	}
	c.cache = client
	c.cleanup = append(c.cleanup, func(context.Context) { _ = client.Close() })
	logger.Infow("Redis cache initialized", "addr", opts.Redis.Addr(), "ttl", opts.TTL.String())
}

// newEmbedder 创建 Embedder。供应商延迟创建，并按需叠加缓存与韧性包装。
func newEmbedder(c *components, llmOpts *llmopts.ProviderOptions, eo *bqoptions.EmbeddingOptions,
	cache *cacheopts.Options,
) error {
	p, err := pool.NewPool("embedder", &pool.Config{
		Capacity:       eo.Workers,
		ExpiryDuration: pool.DefaultConfig().ExpiryDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder pool: %w", err)
	}
	c.cleanup = append(c.cleanup, func(context.Context) { p.Release() })

	factory := func() (llm.EmbeddingProvider, error) {
		provider, err := llm.NewEmbeddingProvider(llmOpts.Provider, llmOpts.ToConfig())
		if err != nil {
			return nil, err
		}
		guard := resilience.NewGuard(provider.Name(), llmOpts.RequestsPerSecond, llmOpts.Burst,
			resilience.DefaultBreakerConfig(), func(string) { c.metrics.RecordBreakerOpen() })
		var wrapped llm.EmbeddingProvider = resilience.NewResilientEmbeddingProvider(provider, nil, guard)
		if c.cache != nil {
			wrapped = llm.NewCachedEmbeddingProvider(wrapped, c.cache, &llm.EmbeddingCacheConfig{
				TTL:       cache.EmbeddingTTL,
				KeyPrefix: cache.KeyPrefix + "emb:",
			})
		}
		return wrapped, nil
	}

	c.embedder = biz.NewEmbedder(factory, eo.EmbedderConfig(llmOpts.Model), p)
	return nil
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := initLogger(cfg.LogOptions); err != nil {
		return nil, err
	}
	logger.Infow("Starting budget question answering service...",
		"version", app.GetVersion(),
		"go_version", runtime.Version(),
		"embedding_provider", cfg.EmbeddingOptions.Provider,
		"chat_provider", cfg.ChatOptions.Provider,
		"vector_store", cfg.VectorStoreOptions.Backend,
	)

	c := &components{metrics: metrics.New()}
	srv, err := cfg.build(ctx, c)
	if err != nil {
		c.close(ctx)
		return nil, err
	}
	return &Server{srv: srv, cleanup: c.cleanup}, nil
}

func (cfg *Config) build(ctx context.Context, c *components) (*server.Server, error) {
	if err := newVectorStore(ctx, c, cfg.VectorStoreOptions, cfg.MilvusOptions, cfg.EmbedderOptions.Dimension); err != nil {
		return nil, err
	}
	newCache(ctx, c, cfg.CacheOptions)
	if err := newEmbedder(c, cfg.EmbeddingOptions, cfg.EmbedderOptions, cfg.CacheOptions); err != nil {
		return nil, err
	}

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatGuard := resilience.NewGuard(chatProvider.Name(), cfg.ChatOptions.RequestsPerSecond, cfg.ChatOptions.Burst,
		resilience.DefaultBreakerConfig(), func(string) { c.metrics.RecordBreakerOpen() })
	chat := resilience.NewResilientChatProvider(chatProvider, chatGuard)
	logger.Infow("Chat provider initialized", "provider", chatProvider.Name(), "model", cfg.ChatOptions.Model)

	svcCfg := biz.DefaultServiceConfig()
	svcCfg.TopK = cfg.RetrievalOptions.TopK
	svcCfg.Threshold = cfg.RetrievalOptions.Threshold
	svcCfg.Version = app.GetVersion()

	svcOpts := []biz.ServiceOption{biz.WithLLMState(chatGuard.State)}
	if c.cache != nil {
		svcOpts = append(svcOpts, biz.WithQueryCache(biz.NewQueryCache(c.cache, biz.QueryCacheConfig{
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix + "query:",
		})))
	}

	generator := biz.NewGenerator(chat, cfg.GenerationOptions.GeneratorConfig(), c.metrics)
	svc := biz.NewService(svcCfg, c.embedder, c.store, generator, c.metrics, svcOpts...)

	h := handler.New(svc, func() string { return c.metrics.Export(Name) })
	srv := server.NewServer(cfg.HTTPOptions, cfg.MiddlewareOptions)
	router.Register(srv.Engine(), h)
	return srv, nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		for i := len(s.cleanup) - 1; i >= 0; i-- {
			s.cleanup[i](closeCtx)
		}
		_ = logger.Flush()
	}()

	return s.srv.Run(ctx)
}
