package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/budgetqa/internal/budgetqa"
	bqoptions "github.com/kart-io/budgetqa/internal/budgetqa/options"
	"github.com/kart-io/budgetqa/pkg/infra/app"
	genericoptions "github.com/kart-io/budgetqa/pkg/options"
	cacheopts "github.com/kart-io/budgetqa/pkg/options/cache"
	dbopts "github.com/kart-io/budgetqa/pkg/options/database"
	llmopts "github.com/kart-io/budgetqa/pkg/options/llm"
	logopts "github.com/kart-io/budgetqa/pkg/options/logger"
	milvusopts "github.com/kart-io/budgetqa/pkg/options/milvus"
)

// IngestOptions contains the configuration options of the ingest command.
type IngestOptions struct {
	// IngestionOptions 导入参数不带前缀，直接位于配置顶层。
	bqoptions.IngestionOptions `mapstructure:",squash"`

	LogOptions         *logopts.Options              `json:"log" mapstructure:"log"`
	MilvusOptions      *milvusopts.Options           `json:"milvus" mapstructure:"milvus"`
	DatabaseOptions    *dbopts.Options               `json:"database" mapstructure:"database"`
	EmbeddingOptions   *llmopts.ProviderOptions      `json:"embedding" mapstructure:"embedding"`
	CacheOptions       *cacheopts.Options            `json:"cache" mapstructure:"cache"`
	EmbedderOptions    *bqoptions.EmbeddingOptions   `json:"embedder" mapstructure:"embedder"`
	ChunkingOptions    *bqoptions.ChunkingOptions    `json:"chunking" mapstructure:"chunking"`
	ExtractionOptions  *bqoptions.ExtractionOptions  `json:"extraction" mapstructure:"extraction"`
	TaggerOptions      *bqoptions.TaggerOptions      `json:"tagger" mapstructure:"tagger"`
	VectorStoreOptions *bqoptions.VectorStoreOptions `json:"vector-store" mapstructure:"vector-store"`
}

// NewIngestOptions creates an IngestOptions instance with default values.
func NewIngestOptions() *IngestOptions {
	return &IngestOptions{
		IngestionOptions:   *bqoptions.NewIngestionOptions(),
		LogOptions:         logopts.NewOptions(),
		MilvusOptions:      milvusopts.NewOptions(),
		DatabaseOptions:    dbopts.NewOptions(),
		EmbeddingOptions:   llmopts.NewEmbeddingOptions(),
		CacheOptions:       cacheopts.NewOptions(),
		EmbedderOptions:    bqoptions.NewEmbeddingOptions(),
		ChunkingOptions:    bqoptions.NewChunkingOptions(),
		ExtractionOptions:  bqoptions.NewExtractionOptions(),
		TaggerOptions:      &bqoptions.TaggerOptions{},
		VectorStoreOptions: bqoptions.NewVectorStoreOptions(),
	}
}

// Flags returns the ingest flags grouped by section.
func (o *IngestOptions) Flags() (fss app.NamedFlagSets) {
	o.IngestionOptions.AddFlags(fss.FlagSet("ingest"))
	o.ChunkingOptions.AddFlags(fss.FlagSet("chunking"))
	o.ExtractionOptions.AddFlags(fss.FlagSet("extraction"))
	o.TaggerOptions.AddFlags(fss.FlagSet("tagger"))
	o.EmbedderOptions.AddFlags(fss.FlagSet("embedder"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.VectorStoreOptions.AddFlags(fss.FlagSet("vector-store"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete completes all the required options.
func (o *IngestOptions) Complete() error {
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.DatabaseOptions.Complete(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return o.VectorStoreOptions.Complete()
}

// Validate checks whether the options in IngestOptions are valid.
// 跳过向量化时不校验供应商、向量库与登记表配置。
func (o *IngestOptions) Validate() error {
	errs := genericoptions.ValidateAll(
		&o.IngestionOptions,
		o.LogOptions,
		o.ChunkingOptions,
		o.ExtractionOptions,
		o.TaggerOptions,
	)
	if !o.SkipEmbed {
		errs = append(errs, genericoptions.ValidateAll(
			o.EmbeddingOptions,
			o.EmbedderOptions,
			o.VectorStoreOptions,
			o.DatabaseOptions,
			o.CacheOptions,
		)...)
		if o.VectorStoreOptions.Backend == bqoptions.BackendMilvus {
			errs = append(errs, o.MilvusOptions.Validate()...)
		}
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a budgetqa.IngestConfig based on IngestOptions.
func (o *IngestOptions) Config() (*budgetqa.IngestConfig, error) {
	ingestion := o.IngestionOptions
	return &budgetqa.IngestConfig{
		LogOptions:         o.LogOptions,
		MilvusOptions:      o.MilvusOptions,
		DatabaseOptions:    o.DatabaseOptions,
		EmbeddingOptions:   o.EmbeddingOptions,
		CacheOptions:       o.CacheOptions,
		EmbedderOptions:    o.EmbedderOptions,
		ChunkingOptions:    o.ChunkingOptions,
		ExtractionOptions:  o.ExtractionOptions,
		TaggerOptions:      o.TaggerOptions,
		VectorStoreOptions: o.VectorStoreOptions,
		IngestionOptions:   &ingestion,
	}, nil
}
