// Package options 定义导入流水线与问答服务的可调参数。
package options

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/internal/budgetqa/biz"
	"github.com/kart-io/budgetqa/internal/budgetqa/chunker"
	"github.com/kart-io/budgetqa/internal/budgetqa/extract"
	"github.com/kart-io/budgetqa/internal/budgetqa/tagger"
	genericoptions "github.com/kart-io/budgetqa/pkg/options"
)

// 向量存储后端。
const (
	BackendMemory = "memory"
	BackendMilvus = "milvus"
)

var (
	_ genericoptions.IOptions = (*ChunkingOptions)(nil)
	_ genericoptions.IOptions = (*ExtractionOptions)(nil)
	_ genericoptions.IOptions = (*TaggerOptions)(nil)
	_ genericoptions.IOptions = (*EmbeddingOptions)(nil)
	_ genericoptions.IOptions = (*RetrievalOptions)(nil)
	_ genericoptions.IOptions = (*GenerationOptions)(nil)
	_ genericoptions.IOptions = (*VectorStoreOptions)(nil)
	_ genericoptions.IOptions = (*IngestionOptions)(nil)
)

// ChunkingOptions 分块参数，单位为估算 token。
type ChunkingOptions struct {
	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	MinChunkSize int `json:"min-chunk-size" mapstructure:"min-chunk-size"`
}

// NewChunkingOptions 创建默认分块参数。
func NewChunkingOptions() *ChunkingOptions {
	c := chunker.DefaultConfig()
	return &ChunkingOptions{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap, MinChunkSize: c.MinChunkSize}
}

// Config 转换为分块器配置。
func (o *ChunkingOptions) Config() chunker.Config {
	return chunker.Config{ChunkSize: o.ChunkSize, ChunkOverlap: o.ChunkOverlap, MinChunkSize: o.MinChunkSize}
}

// AddFlags adds chunking flags.
func (o *ChunkingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "chunking."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Token budget of a chunk.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Token budget of the overlap carried into the next chunk.")
	fs.IntVar(&o.MinChunkSize, p+"min-chunk-size", o.MinChunkSize, "Trailing chunks under a quarter of this size are dropped.")
}

// Validate validates the chunking options.
func (o *ChunkingOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if err := o.Config().Validate(); err != nil {
		return []error{fmt.Errorf("chunking: %w", err)}
	}
	return nil
}

// ExtractionOptions PDF 提取参数。
type ExtractionOptions struct {
	AllowedExtensions []string `json:"allowed-extensions" mapstructure:"allowed-extensions"`
	MaxSizeMB         float64  `json:"max-size-mb" mapstructure:"max-size-mb"`
	Fallback          bool     `json:"fallback" mapstructure:"fallback"`
}

// NewExtractionOptions 创建默认提取参数。
func NewExtractionOptions() *ExtractionOptions {
	c := extract.DefaultConfig()
	return &ExtractionOptions{AllowedExtensions: c.AllowedExtensions, MaxSizeMB: c.MaxSizeMB, Fallback: c.Fallback}
}

// Config 转换为提取器配置，扩展名统一为小写并带点。
func (o *ExtractionOptions) Config() extract.Config {
	exts := make([]string, 0, len(o.AllowedExtensions))
	for _, e := range o.AllowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return extract.Config{AllowedExtensions: exts, MaxSizeMB: o.MaxSizeMB, Fallback: o.Fallback}
}

// AddFlags adds extraction flags.
func (o *ExtractionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "extraction."
	fs.StringSliceVar(&o.AllowedExtensions, p+"allowed-extensions", o.AllowedExtensions, "File extensions accepted for extraction.")
	fs.Float64Var(&o.MaxSizeMB, p+"max-size-mb", o.MaxSizeMB, "Maximum file size in MB.")
	fs.BoolVar(&o.Fallback, p+"fallback", o.Fallback, "Retry with the fallback engine when the primary engine fails.")
}

// Validate validates the extraction options.
func (o *ExtractionOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if len(o.Config().AllowedExtensions) == 0 {
		errs = append(errs, fmt.Errorf("extraction.allowed-extensions cannot be empty"))
	}
	if o.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("extraction.max-size-mb must be positive"))
	}
	return errs
}

// TaggerOptions 标注词典。
type TaggerOptions struct {
	// DictionaryFile YAML 词典文件，空值使用内置词典。
	DictionaryFile string `json:"dictionary-file" mapstructure:"dictionary-file"`
}

// Dictionaries 加载词典。
func (o *TaggerOptions) Dictionaries() (*tagger.Dictionaries, error) {
	if o.DictionaryFile == "" {
		return tagger.DefaultDictionaries(), nil
	}
	return tagger.LoadDictionaries(o.DictionaryFile)
}

// AddFlags adds tagger flags.
func (o *TaggerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DictionaryFile, genericoptions.Join(prefixes...)+"tagger.dictionary-file", o.DictionaryFile,
		"YAML file overriding the built-in tagging dictionaries.")
}

// Validate validates the tagger options.
func (o *TaggerOptions) Validate() []error {
	return nil
}

// EmbeddingOptions 向量化参数，模型与供应商在 llm 配置中。
type EmbeddingOptions struct {
	Dimension        int     `json:"dimension" mapstructure:"dimension"`
	BatchSize        int     `json:"batch-size" mapstructure:"batch-size"`
	MaxChars         int     `json:"max-chars" mapstructure:"max-chars"`
	BatchesPerSecond float64 `json:"batches-per-second" mapstructure:"batches-per-second"`
	Workers          int     `json:"workers" mapstructure:"workers"`
}

// NewEmbeddingOptions 创建默认向量化参数。
func NewEmbeddingOptions() *EmbeddingOptions {
	c := biz.DefaultEmbedderConfig()
	return &EmbeddingOptions{
		Dimension:        c.Dimension,
		BatchSize:        c.BatchSize,
		MaxChars:         c.MaxChars,
		BatchesPerSecond: 2,
		Workers:          2,
	}
}

// EmbedderConfig 转换为 Embedder 配置。
func (o *EmbeddingOptions) EmbedderConfig(model string) biz.EmbedderConfig {
	return biz.EmbedderConfig{
		Model:            model,
		Dimension:        o.Dimension,
		BatchSize:        o.BatchSize,
		MaxChars:         o.MaxChars,
		BatchesPerSecond: o.BatchesPerSecond,
	}
}

// AddFlags adds embedding flags.
func (o *EmbeddingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "embedder."
	fs.IntVar(&o.Dimension, p+"dimension", o.Dimension, "Embedding dimension, fixed for the lifetime of the corpus.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Texts per embedding request.")
	fs.IntVar(&o.MaxChars, p+"max-chars", o.MaxChars, "Texts are truncated to this many characters before embedding.")
	fs.Float64Var(&o.BatchesPerSecond, p+"batches-per-second", o.BatchesPerSecond, "Pacing between embedding batches, 0 disables it.")
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Concurrent embedding batches.")
}

// Validate validates the embedding options.
func (o *EmbeddingOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedder.dimension must be positive"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedder.batch-size must be positive"))
	}
	if o.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("embedder.max-chars must be positive"))
	}
	if o.BatchesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("embedder.batches-per-second cannot be negative"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("embedder.workers must be positive"))
	}
	return errs
}

// RetrievalOptions 检索参数。
type RetrievalOptions struct {
	TopK      int     `json:"top-k" mapstructure:"top-k"`
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

// NewRetrievalOptions 创建默认检索参数。
func NewRetrievalOptions() *RetrievalOptions {
	c := biz.DefaultServiceConfig()
	return &RetrievalOptions{TopK: c.TopK, Threshold: c.Threshold}
}

// AddFlags adds retrieval flags.
func (o *RetrievalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "retrieval."
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Chunks retrieved per question.")
	fs.Float64Var(&o.Threshold, p+"threshold", o.Threshold, "Chunks must score strictly above this cosine similarity.")
}

// Validate validates the retrieval options.
func (o *RetrievalOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top-k must be positive"))
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be within [0, 1]"))
	}
	return errs
}

// GenerationOptions 答案生成参数。
type GenerationOptions struct {
	MaxContextChunks int           `json:"max-context-chunks" mapstructure:"max-context-chunks"`
	RetryBackoff     time.Duration `json:"retry-backoff" mapstructure:"retry-backoff"`
	ExcerptLength    int           `json:"excerpt-length" mapstructure:"excerpt-length"`
}

// NewGenerationOptions 创建默认生成参数。
func NewGenerationOptions() *GenerationOptions {
	c := biz.DefaultGeneratorConfig()
	return &GenerationOptions{MaxContextChunks: c.MaxContextChunks, RetryBackoff: c.RetryBackoff, ExcerptLength: c.ExcerptLength}
}

// GeneratorConfig 转换为 Generator 配置。
func (o *GenerationOptions) GeneratorConfig() biz.GeneratorConfig {
	return biz.GeneratorConfig{MaxContextChunks: o.MaxContextChunks, RetryBackoff: o.RetryBackoff, ExcerptLength: o.ExcerptLength}
}

// AddFlags adds generation flags.
func (o *GenerationOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "generation."
	fs.IntVar(&o.MaxContextChunks, p+"max-context-chunks", o.MaxContextChunks, "Retrieved chunks passed to the model as context.")
	fs.DurationVar(&o.RetryBackoff, p+"retry-backoff", o.RetryBackoff, "Wait before the single retry after a rate limit.")
	fs.IntVar(&o.ExcerptLength, p+"excerpt-length", o.ExcerptLength, "Characters of chunk text quoted in a source.")
}

// Validate validates the generation options.
func (o *GenerationOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxContextChunks <= 0 {
		errs = append(errs, fmt.Errorf("generation.max-context-chunks must be positive"))
	}
	if o.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("generation.retry-backoff cannot be negative"))
	}
	if o.ExcerptLength <= 0 {
		errs = append(errs, fmt.Errorf("generation.excerpt-length must be positive"))
	}
	return errs
}

// VectorStoreOptions 向量存储后端选择。
type VectorStoreOptions struct {
	// Backend memory 或 milvus。
	Backend string `json:"backend" mapstructure:"backend"`
	// SnapshotPath memory 后端的快照文件，空值表示不持久化。
	SnapshotPath string `json:"snapshot-path" mapstructure:"snapshot-path"`
}

// NewVectorStoreOptions 创建默认向量存储配置。
func NewVectorStoreOptions() *VectorStoreOptions {
	return &VectorStoreOptions{Backend: BackendMemory, SnapshotPath: "data/vectors.json"}
}

// AddFlags adds vector store flags.
func (o *VectorStoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...) + "vector-store."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Vector store backend (memory, milvus).")
	fs.StringVar(&o.SnapshotPath, p+"snapshot-path", o.SnapshotPath, "Snapshot file of the memory backend, empty keeps vectors in memory only.")
}

// Complete normalizes the backend name.
func (o *VectorStoreOptions) Complete() error {
	o.Backend = strings.ToLower(strings.TrimSpace(o.Backend))
	return nil
}

// Validate validates the vector store options.
func (o *VectorStoreOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Backend != BackendMemory && o.Backend != BackendMilvus {
		return []error{fmt.Errorf("vector-store.backend must be %q or %q, got %q", BackendMemory, BackendMilvus, o.Backend)}
	}
	return nil
}

// IngestionOptions 导入命令参数。
type IngestionOptions struct {
	InputDir        string `json:"input-dir" mapstructure:"input-dir"`
	OutputDir       string `json:"output-dir" mapstructure:"output-dir"`
	OutputFormat    string `json:"output-format" mapstructure:"output-format"`
	SkipEmbed       bool   `json:"skip-embed" mapstructure:"skip-embed"`
	Force           bool   `json:"force" mapstructure:"force"`
	UpsertBatchSize int    `json:"upsert-batch-size" mapstructure:"upsert-batch-size"`
}

// NewIngestionOptions 创建默认导入参数。
func NewIngestionOptions() *IngestionOptions {
	return &IngestionOptions{
		InputDir:        "data/raw",
		OutputDir:       "data",
		OutputFormat:    biz.FormatJSON,
		UpsertBatchSize: 100,
	}
}

// IngesterConfig 转换为 Ingester 配置。
func (o *IngestionOptions) IngesterConfig() biz.IngesterConfig {
	return biz.IngesterConfig{
		InputDir:        o.InputDir,
		OutputDir:       o.OutputDir,
		OutputFormat:    o.OutputFormat,
		SkipEmbed:       o.SkipEmbed,
		Force:           o.Force,
		UpsertBatchSize: o.UpsertBatchSize,
	}
}

// AddFlags adds ingestion flags. 这些参数只属于 ingest 命令，不加前缀。
func (o *IngestionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := genericoptions.Join(prefixes...)
	fs.StringVar(&o.InputDir, p+"input-dir", o.InputDir, "Directory containing the PDF files.")
	fs.StringVar(&o.OutputDir, p+"output-dir", o.OutputDir, "Root directory of the processed_chunks output, empty disables it.")
	fs.StringVar(&o.OutputFormat, p+"output-format", o.OutputFormat, "Output format (json, jsonl).")
	fs.BoolVar(&o.SkipEmbed, p+"skip-embed", o.SkipEmbed, "Only write the chunk files, do not embed or upsert.")
	fs.BoolVar(&o.Force, p+"force", o.Force, "Re-ingest documents already registered with the same content.")
	fs.IntVar(&o.UpsertBatchSize, p+"upsert-batch-size", o.UpsertBatchSize, "Chunks per vector store upsert.")
}

// Validate validates the ingestion options.
func (o *IngestionOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.InputDir == "" {
		errs = append(errs, fmt.Errorf("input-dir is required"))
	}
	if !slices.Contains([]string{biz.FormatJSON, biz.FormatJSONL}, o.OutputFormat) {
		errs = append(errs, fmt.Errorf("output-format must be %q or %q, got %q", biz.FormatJSON, biz.FormatJSONL, o.OutputFormat))
	}
	if o.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("upsert-batch-size must be positive"))
	}
	return errs
}
