package budgetqa

import (
	"context"
	"fmt"
	"io"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/biz"
	"github.com/kart-io/budgetqa/internal/budgetqa/chunker"
	"github.com/kart-io/budgetqa/internal/budgetqa/extract"
	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	bqoptions "github.com/kart-io/budgetqa/internal/budgetqa/options"
	"github.com/kart-io/budgetqa/internal/budgetqa/registry"
	"github.com/kart-io/budgetqa/internal/budgetqa/tagger"
	"github.com/kart-io/budgetqa/pkg/component/database"
	cacheopts "github.com/kart-io/budgetqa/pkg/options/cache"
	dbopts "github.com/kart-io/budgetqa/pkg/options/database"
	llmopts "github.com/kart-io/budgetqa/pkg/options/llm"
	logopts "github.com/kart-io/budgetqa/pkg/options/logger"
	milvusopts "github.com/kart-io/budgetqa/pkg/options/milvus"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// IngestConfig contains the configuration of one ingestion run.
type IngestConfig struct {
	LogOptions         *logopts.Options
	MilvusOptions      *milvusopts.Options
	DatabaseOptions    *dbopts.Options
	EmbeddingOptions   *llmopts.ProviderOptions
	CacheOptions       *cacheopts.Options
	EmbedderOptions    *bqoptions.EmbeddingOptions
	ChunkingOptions    *bqoptions.ChunkingOptions
	ExtractionOptions  *bqoptions.ExtractionOptions
	TaggerOptions      *bqoptions.TaggerOptions
	VectorStoreOptions *bqoptions.VectorStoreOptions
	IngestionOptions   *bqoptions.IngestionOptions

	// Output 接收 JSON 格式的导入汇总，为 nil 时不输出。
	Output io.Writer
}

// RunIngest 执行一次导入：提取、分块、打标签，按需向量化写入，并输出汇总。
func (cfg *IngestConfig) RunIngest(ctx context.Context) (*biz.IngestionSummary, error) {
	if err := initLogger(cfg.LogOptions); err != nil {
		return nil, err
	}
	defer func() { _ = logger.Flush() }()

	c := &components{metrics: metrics.New()}
	defer c.close(context.WithoutCancel(ctx))

	ingester, err := cfg.build(ctx, c)
	if err != nil {
		return nil, err
	}

	summary, err := ingester.Run(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Output != nil {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode summary: %w", err)
		}
		if _, err := fmt.Fprintln(cfg.Output, string(data)); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

func (cfg *IngestConfig) build(ctx context.Context, c *components) (*biz.Ingester, error) {
	ck, err := chunker.New(cfg.ChunkingOptions.Config())
	if err != nil {
		return nil, err
	}
	dict, err := cfg.TaggerOptions.Dictionaries()
	if err != nil {
		return nil, fmt.Errorf("failed to load tagger dictionaries: %w", err)
	}
	tg, err := tagger.New(dict)
	if err != nil {
		return nil, err
	}

	opts := []biz.IngesterOption{biz.WithIngestMetrics(c.metrics)}
	if !cfg.IngestionOptions.SkipEmbed {
		if err := newVectorStore(ctx, c, cfg.VectorStoreOptions, cfg.MilvusOptions, cfg.EmbedderOptions.Dimension); err != nil {
			return nil, err
		}
		newCache(ctx, c, cfg.CacheOptions)
		if err := newEmbedder(c, cfg.EmbeddingOptions, cfg.EmbedderOptions, cfg.CacheOptions); err != nil {
			return nil, err
		}
		opts = append(opts, biz.WithVectorStore(c.embedder, c.store))

		db, err := database.New(ctx, cfg.DatabaseOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open document registry: %w", err)
		}
		c.cleanup = append(c.cleanup, func(context.Context) { _ = db.Close() })
		reg, err := registry.New(ctx, db.DB())
		if err != nil {
			return nil, err
		}
		opts = append(opts, biz.WithRegistry(reg))
		logger.Infow("Document registry initialized", "driver", db.Name())
	}

	return biz.NewIngester(cfg.IngestionOptions.IngesterConfig(),
		extract.New(cfg.ExtractionOptions.Config()), ck, tg, opts...), nil
}
