// Package options contains flags and options of the budgetqa commands.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/budgetqa/internal/budgetqa"
	bqoptions "github.com/kart-io/budgetqa/internal/budgetqa/options"
	"github.com/kart-io/budgetqa/pkg/infra/app"
	genericoptions "github.com/kart-io/budgetqa/pkg/options"
	cacheopts "github.com/kart-io/budgetqa/pkg/options/cache"
	llmopts "github.com/kart-io/budgetqa/pkg/options/llm"
	logopts "github.com/kart-io/budgetqa/pkg/options/logger"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
	milvusopts "github.com/kart-io/budgetqa/pkg/options/milvus"
	httpopts "github.com/kart-io/budgetqa/pkg/options/server/http"
)

var (
	_ app.CliOptions = (*ServerOptions)(nil)
	_ app.CliOptions = (*IngestOptions)(nil)
)

// ServerOptions contains the configuration options of the serve command.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// MiddlewareOptions contains the HTTP middleware configuration.
	MiddlewareOptions *mwopts.Options `json:"middleware" mapstructure:"middleware"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus configuration, used by the milvus backend.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// CacheOptions contains cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	EmbedderOptions    *bqoptions.EmbeddingOptions   `json:"embedder" mapstructure:"embedder"`
	RetrievalOptions   *bqoptions.RetrievalOptions   `json:"retrieval" mapstructure:"retrieval"`
	GenerationOptions  *bqoptions.GenerationOptions  `json:"generation" mapstructure:"generation"`
	VectorStoreOptions *bqoptions.VectorStoreOptions `json:"vector-store" mapstructure:"vector-store"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:        httpopts.NewOptions(),
		MiddlewareOptions:  mwopts.NewOptions(),
		LogOptions:         logopts.NewOptions(),
		MilvusOptions:      milvusopts.NewOptions(),
		EmbeddingOptions:   llmopts.NewEmbeddingOptions(),
		ChatOptions:        llmopts.NewChatOptions(),
		CacheOptions:       cacheopts.NewOptions(),
		EmbedderOptions:    bqoptions.NewEmbeddingOptions(),
		RetrievalOptions:   bqoptions.NewRetrievalOptions(),
		GenerationOptions:  bqoptions.NewGenerationOptions(),
		VectorStoreOptions: bqoptions.NewVectorStoreOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.MiddlewareOptions.AddFlags(fss.FlagSet("middleware"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbedderOptions.AddFlags(fss.FlagSet("embedder"))
	o.RetrievalOptions.AddFlags(fss.FlagSet("retrieval"))
	o.GenerationOptions.AddFlags(fss.FlagSet("generation"))
	o.VectorStoreOptions.AddFlags(fss.FlagSet("vector-store"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.MiddlewareOptions.Complete(); err != nil {
		return err
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return o.VectorStoreOptions.Complete()
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := genericoptions.ValidateAll(
		o.HTTPOptions,
		o.MiddlewareOptions,
		o.LogOptions,
		o.EmbeddingOptions,
		o.ChatOptions,
		o.CacheOptions,
		o.EmbedderOptions,
		o.RetrievalOptions,
		o.GenerationOptions,
		o.VectorStoreOptions,
	)
	if o.VectorStoreOptions.Backend == bqoptions.BackendMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a budgetqa.Config based on ServerOptions.
func (o *ServerOptions) Config() (*budgetqa.Config, error) {
	return &budgetqa.Config{
		HTTPOptions:        o.HTTPOptions,
		MiddlewareOptions:  o.MiddlewareOptions,
		LogOptions:         o.LogOptions,
		MilvusOptions:      o.MilvusOptions,
		EmbeddingOptions:   o.EmbeddingOptions,
		ChatOptions:        o.ChatOptions,
		CacheOptions:       o.CacheOptions,
		EmbedderOptions:    o.EmbedderOptions,
		RetrievalOptions:   o.RetrievalOptions,
		GenerationOptions:  o.GenerationOptions,
		VectorStoreOptions: o.VectorStoreOptions,
	}, nil
}
