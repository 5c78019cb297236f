package biz

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// 导入产物格式。
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// CorpusMetadata 导入产物头部的语料统计。
type CorpusMetadata struct {
	CreatedAt      string   `json:"created_at"`
	TotalDocuments int      `json:"total_documents"`
	TotalChunks    int      `json:"total_chunks"`
	Topics         []string `json:"topics"`
	UserTypes      []string `json:"user_types"`
	Sectors        []string `json:"sectors"`
	IncomeRanges   []string `json:"income_ranges"`
}

// ChunkArtifact json 格式的导入产物。
type ChunkArtifact struct {
	Metadata CorpusMetadata      `json:"metadata"`
	Chunks   []model.TaggedChunk `json:"chunks"`
}

// OutputWriter 将分块写入 {dir}/processed_chunks。
type OutputWriter struct {
	dir string
}

// NewOutputWriter 创建 OutputWriter，dir 为输出根目录。
func NewOutputWriter(dir string) *OutputWriter {
	return &OutputWriter{dir: filepath.Join(dir, "processed_chunks")}
}

// Dir 返回实际输出目录。
func (w *OutputWriter) Dir() string {
	return w.dir
}

// WriteCorpus 写入全部分块，返回文件路径。
func (w *OutputWriter) WriteCorpus(format string, meta CorpusMetadata, chunks []model.TaggedChunk) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	switch format {
	case FormatJSON:
		path := filepath.Join(w.dir, "budget_chunks.json")
		return path, writeIndented(path, ChunkArtifact{Metadata: meta, Chunks: nonNil(chunks)})
	case FormatJSONL:
		path := filepath.Join(w.dir, "budget_chunks.jsonl")
		return path, writeLines(path, chunks)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteDocument 写入单个文档的分块，文件名为 {stem}_chunks.json。
func (w *OutputWriter) WriteDocument(filename string, chunks []model.TaggedChunk) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	path := filepath.Join(w.dir, stem+"_chunks.json")
	return path, writeIndented(path, nonNil(chunks))
}

func writeIndented(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeLines(path string, chunks []model.TaggedChunk) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", c.ChunkID, err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func nonNil(chunks []model.TaggedChunk) []model.TaggedChunk {
	if chunks == nil {
		return []model.TaggedChunk{}
	}
	return chunks
}

func newCorpusMetadata(now time.Time, documents int, chunks []model.TaggedChunk, stats *corpusStats) CorpusMetadata {
	return CorpusMetadata{
		CreatedAt:      now.Format(time.RFC3339),
		TotalDocuments: documents,
		TotalChunks:    len(chunks),
		Topics:         stats.topics.sorted(),
		UserTypes:      stats.userTypes.sorted(),
		Sectors:        stats.sectors.sorted(),
		IncomeRanges:   stats.incomeRanges.sorted(),
	}
}
