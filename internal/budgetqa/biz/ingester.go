package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/chunker"
	"github.com/kart-io/budgetqa/internal/budgetqa/extract"
	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/budgetqa/registry"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/budgetqa/tagger"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
)

// ErrNoDocuments 输入目录中没有可提取的文档。
var ErrNoDocuments = errors.New("no documents could be loaded")

// BatchExtractor 批量提取 PDF。
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, dir string) (*extract.BatchResult, error)
}

// IngesterConfig 导入配置。
type IngesterConfig struct {
	// InputDir PDF 所在目录。
	InputDir string
	// OutputDir 产物根目录，空字符串表示不写产物。
	OutputDir string
	// OutputFormat json 或 jsonl。
	OutputFormat string
	// SkipEmbed 只写产物，不向量化也不写入向量库。
	SkipEmbed bool
	// Force 忽略登记表，重新导入内容未变的文档。
	Force bool
	// UpsertBatchSize 每次写入向量库的分块数。
	UpsertBatchSize int
}

// IngestionSummary 一次导入的汇总。
type IngestionSummary struct {
	DocumentsProcessed    int                  `json:"documents_processed"`
	FailedFiles           []extract.FailedFile `json:"failed_files"`
	TotalPages            int                  `json:"total_pages"`
	TotalChunks           int                  `json:"total_chunks"`
	AvgChunkSizeWords     int                  `json:"avg_chunk_size_words"`
	ProcessingTimeSeconds float64              `json:"processing_time_seconds"`
	UniqueTopics          []string             `json:"unique_topics"`
	UniqueUserTypes       []string             `json:"unique_user_types"`
	UniqueSectors         []string             `json:"unique_sectors"`
	UniqueIncomeRanges    []string             `json:"unique_income_ranges"`
	OutputSaved           bool                 `json:"output_saved"`
	OutputFormat          string               `json:"output_format,omitempty"`
	OutputFile            string               `json:"output_file,omitempty"`
	ChunksUpserted        int                  `json:"chunks_upserted"`
	ChunksFailed          int                  `json:"chunks_failed"`
	DocumentsSkipped      int                  `json:"documents_skipped"`
}

// Ingester 导入流程：提取 → 分块 → 打标签 → 向量化 → 写入。文档逐个串行处理。
type Ingester struct {
	cfg       IngesterConfig
	extractor BatchExtractor
	chunker   *chunker.Chunker
	tagger    *tagger.Tagger
	embedder  *Embedder
	store     store.VectorStore
	registry  registry.Registry
	metrics   *metrics.Metrics
	now       func() time.Time
}

// IngesterOption 配置 Ingester。
type IngesterOption func(*Ingester)

// WithVectorStore 设置向量化与写入所需的组件。
func WithVectorStore(embedder *Embedder, vectorStore store.VectorStore) IngesterOption {
	return func(i *Ingester) {
		i.embedder = embedder
		i.store = vectorStore
	}
}

// WithRegistry 设置文档登记表。
func WithRegistry(r registry.Registry) IngesterOption {
	return func(i *Ingester) { i.registry = r }
}

// WithIngestMetrics 设置指标。
func WithIngestMetrics(m *metrics.Metrics) IngesterOption {
	return func(i *Ingester) { i.metrics = m }
}

// NewIngester 创建 Ingester。
func NewIngester(cfg IngesterConfig, extractor BatchExtractor, c *chunker.Chunker, t *tagger.Tagger, opts ...IngesterOption) *Ingester {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = FormatJSON
	}
	i := &Ingester{cfg: cfg, extractor: extractor, chunker: c, tagger: t, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run 执行一次完整导入。
func (i *Ingester) Run(ctx context.Context) (*IngestionSummary, error) {
	start := i.now()
	logger.Infow("Starting ingestion", "input_dir", i.cfg.InputDir, "skip_embed", i.cfg.SkipEmbed, "force", i.cfg.Force)

	batch, err := i.extractor.ExtractBatch(ctx, i.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("extract documents: %w", err)
	}
	for _, f := range batch.Failed {
		logger.Errorw("Document dropped", "path", f.Path, "error", f.Error)
		i.metrics.RecordDocumentFailure()
	}
	if len(batch.Documents) == 0 {
		return nil, fmt.Errorf("%w from %s (%d failed)", ErrNoDocuments, i.cfg.InputDir, len(batch.Failed))
	}

	summary := &IngestionSummary{
		DocumentsProcessed: len(batch.Documents),
		FailedFiles:        batch.Failed,
	}
	if summary.FailedFiles == nil {
		summary.FailedFiles = []extract.FailedFile{}
	}

	stats := newCorpusStats()
	var (
		all        []model.TaggedChunk
		perDoc     = make(map[string][]model.TaggedChunk, len(batch.Documents))
		totalWords int
	)

	for _, doc := range batch.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tagged := i.tagger.TagChunks(i.chunker.ChunkDocument(doc))
		for _, c := range tagged {
			stats.add(c.Metadata)
			totalWords += c.WordCount
		}
		all = append(all, tagged...)
		perDoc[doc.Filename] = tagged
		summary.TotalPages += doc.TotalPages

		if i.cfg.SkipEmbed || i.store == nil || i.embedder == nil {
			continue
		}
		upserted, failed, skipped, err := i.storeDocument(ctx, doc, tagged)
		if err != nil {
			return nil, err
		}
		summary.ChunksUpserted += upserted
		summary.ChunksFailed += failed
		if skipped {
			summary.DocumentsSkipped++
		}
		i.metrics.RecordDocument(skipped, upserted, failed)
	}

	summary.TotalChunks = len(all)
	if len(all) > 0 {
		summary.AvgChunkSizeWords = totalWords / len(all)
	}
	summary.UniqueTopics = stats.topics.sorted()
	summary.UniqueUserTypes = stats.userTypes.sorted()
	summary.UniqueSectors = stats.sectors.sorted()
	summary.UniqueIncomeRanges = stats.incomeRanges.sorted()

	if i.cfg.OutputDir != "" {
		path, err := i.writeOutput(len(batch.Documents), all, perDoc, stats)
		if err != nil {
			return nil, err
		}
		summary.OutputSaved = true
		summary.OutputFormat = i.cfg.OutputFormat
		summary.OutputFile = path
	}

	summary.ProcessingTimeSeconds = textutil.Round(i.now().Sub(start).Seconds(), 2)
	logger.Infow("Ingestion completed",
		"documents_processed", summary.DocumentsProcessed,
		"failed_files", len(summary.FailedFiles),
		"total_pages", summary.TotalPages,
		"total_chunks", summary.TotalChunks,
		"avg_chunk_size_words", summary.AvgChunkSizeWords,
		"chunks_upserted", summary.ChunksUpserted,
		"chunks_failed", summary.ChunksFailed,
		"documents_skipped", summary.DocumentsSkipped,
		"processing_time_seconds", summary.ProcessingTimeSeconds,
	)
	return summary, nil
}

// storeDocument 向量化并写入一个文档。登记表中已有同名、同哈希且分块数一致的文档会被跳过。
// 写入前先删除该文档的旧分块及其全部登记记录。维度不符返回错误，其余写入失败只计数。
func (i *Ingester) storeDocument(ctx context.Context, doc *model.ExtractedDocument, chunks []model.TaggedChunk) (upserted, failed int, skipped bool, err error) {
	if i.registry != nil && !i.cfg.Force {
		rec, found, err := i.registry.Get(ctx, doc.FileHash)
		if err != nil {
			logger.Warnw("Registry lookup failed, ingesting anyway", "document", doc.Filename, "error", err.Error())
		} else if found && rec.Filename == doc.Filename && rec.TotalChunks == len(chunks) {
			logger.Infow("Document unchanged, skipping", "document", doc.Filename, "file_hash", doc.FileHash)
			return 0, 0, true, nil
		}
	}

	embedded, err := i.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return 0, 0, false, fmt.Errorf("embed %s: %w", doc.Filename, err)
	}

	deleted, err := i.store.DeleteByDocument(ctx, doc.Filename)
	if err != nil {
		logger.Warnw("Failed to delete previous chunks", "document", doc.Filename, "error", err.Error())
	} else if deleted > 0 {
		logger.Infow("Superseded previous chunks", "document", doc.Filename, "deleted", deleted)
	}
	// 同名文件的旧登记随旧分块一起失效
	if i.registry != nil {
		if n, err := i.registry.DeleteByFilename(ctx, doc.Filename); err != nil {
			logger.Warnw("Failed to drop previous registry records", "document", doc.Filename, "error", err.Error())
		} else if n > 0 {
			logger.Debugw("Dropped previous registry records", "document", doc.Filename, "records", n)
		}
	}

	for start := 0; start < len(embedded); start += i.cfg.UpsertBatchSize {
		end := min(start+i.cfg.UpsertBatchSize, len(embedded))
		if err := i.store.Upsert(ctx, embedded[start:end]); err != nil {
			if errors.Is(err, store.ErrDimensionMismatch) || ctx.Err() != nil {
				return upserted, failed, false, fmt.Errorf("upsert %s: %w", doc.Filename, err)
			}
			logger.Errorw("Upsert batch failed", "document", doc.Filename, "batch_start", start, "size", end-start, "error", err.Error())
			failed += end - start
			continue
		}
		upserted += end - start
	}

	if i.registry != nil && failed == 0 {
		rec := &model.DocumentRecord{
			FileHash:         doc.FileHash,
			Filename:         doc.Filename,
			TotalPages:       doc.TotalPages,
			TotalChunks:      len(chunks),
			ExtractionMethod: string(doc.ExtractionMethod),
			IngestedAt:       i.now().UTC(),
		}
		if err := i.registry.Save(ctx, rec); err != nil {
			logger.Warnw("Failed to register document", "document", doc.Filename, "error", err.Error())
		}
	}

	logger.Infow("Document stored", "document", doc.Filename, "upserted", upserted, "failed", failed)
	return upserted, failed, false, nil
}

func (i *Ingester) writeOutput(documents int, all []model.TaggedChunk, perDoc map[string][]model.TaggedChunk, stats *corpusStats) (string, error) {
	w := NewOutputWriter(i.cfg.OutputDir)
	path, err := w.WriteCorpus(i.cfg.OutputFormat, newCorpusMetadata(i.now(), documents, all, stats), all)
	if err != nil {
		return "", fmt.Errorf("write corpus: %w", err)
	}
	for name, chunks := range perDoc {
		if _, err := w.WriteDocument(name, chunks); err != nil {
			return "", fmt.Errorf("write %s chunks: %w", name, err)
		}
	}
	logger.Infow("Output saved", "path", path, "format", i.cfg.OutputFormat)
	return path, nil
}

type stringSet map[string]struct{}

func (s stringSet) add(values ...string) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// corpusStats 语料级标签集合，主题只统计 main。
type corpusStats struct {
	topics, userTypes, sectors, incomeRanges stringSet
}

func newCorpusStats() *corpusStats {
	return &corpusStats{
		topics:       stringSet{},
		userTypes:    stringSet{},
		sectors:      stringSet{},
		incomeRanges: stringSet{},
	}
}

func (s *corpusStats) add(md model.ChunkMetadata) {
	for _, t := range md.Topics {
		s.topics.add(t.Main)
	}
	s.userTypes.add(md.UserTypes...)
	s.sectors.add(md.Sectors...)
	s.incomeRanges.add(md.IncomeRanges...)
}
