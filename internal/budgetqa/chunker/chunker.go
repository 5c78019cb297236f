// Package chunker 将文档按页切分为带重叠、受 token 预算约束的句子级分块。
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/model"
)

// Config 分块配置，单位均为估算 token。
type Config struct {
	// ChunkSize 单个分块的 token 上限。
	ChunkSize int
	// ChunkOverlap 相邻分块之间的重叠 token 上限。
	ChunkOverlap int
	// MinChunkSize 末尾分块的最小尺寸基数，低于 MinChunkSize/4 的末尾分块被丢弃。
	MinChunkSize int
}

// DefaultConfig 返回默认分块配置。
func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
		MinChunkSize: 100,
	}
}

// Validate 校验配置。
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.MinChunkSize < 0 {
		errs = append(errs, fmt.Errorf("min chunk size must not be negative, got %d", c.MinChunkSize))
	}
	return errors.Join(errs...)
}

// Chunker 句子感知的贪心分块器，无状态，可并发使用。
type Chunker struct {
	cfg Config
}

// New 创建分块器。
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// EstimateTokens 估算 token 数（约 4 个字符一个 token）。
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// ChunkDocument 对整个文档分块，chunk_index 在整个文档内连续递增。
func (c *Chunker) ChunkDocument(doc *model.ExtractedDocument) []model.TextChunk {
	logger.Infow("Chunking document",
		"document", doc.Filename,
		"pages", doc.TotalPages,
		"total_words", doc.Metadata.TotalWords,
	)

	var all []model.TextChunk
	next := 0
	for _, page := range doc.Pages {
		var chunks []model.TextChunk
		chunks, next = c.ChunkPage(doc.Filename, page.PageNumber, page.Text, next)
		all = append(all, chunks...)
	}

	logger.Infow("Document chunked",
		"document", doc.Filename,
		"chunks", len(all),
	)
	return all
}

// ChunkPage 对单页分块，返回分块以及下一个可用的 chunk_index。
func (c *Chunker) ChunkPage(documentName string, pageNumber int, text string, startIndex int) ([]model.TextChunk, int) {
	texts := c.SplitText(text)
	chunks := make([]model.TextChunk, 0, len(texts))
	for i, t := range texts {
		index := startIndex + i
		chunks = append(chunks, model.TextChunk{
			ChunkID:      ChunkID(documentName, pageNumber, index),
			DocumentName: documentName,
			PageNumber:   pageNumber,
			ChunkIndex:   index,
			Text:         t,
			CharCount:    utf8.RuneCountInString(t),
			WordCount:    model.WordCount(t),
			TokenCount:   EstimateTokens(t),
			QualityScore: QualityScore(t),
		})
	}
	return chunks, startIndex + len(texts)
}

// ChunkID 返回确定性的分块 ID。
func ChunkID(documentName string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%s_p%d_c%d", documentName, pageNumber, chunkIndex)
}

// SplitText 将文本切分为分块文本，空白文本返回空切片。
func (c *Chunker) SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	return c.pack(sentences)
}

// window 一组连续句子，chars 为以单个空格连接后的字符数。
type window struct {
	sentences []string
	chars     int
}

func (w *window) tokensWith(chars int) int {
	if len(w.sentences) == 0 {
		return chars / 4
	}
	return (w.chars + 1 + chars) / 4
}

func (w *window) push(s string, chars int) {
	if len(w.sentences) > 0 {
		w.chars++
	}
	w.sentences = append(w.sentences, s)
	w.chars += chars
}

func (w *window) text() string {
	return strings.Join(w.sentences, " ")
}

// pack 贪心地将句子装入分块，溢出时以上一分块尾部句子作为重叠开启新分块。
func (c *Chunker) pack(sentences []string) []string {
	var (
		chunks []string
		cur    window
	)

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if len(cur.sentences) > 0 && cur.tokensWith(n) > c.cfg.ChunkSize {
			chunks = append(chunks, cur.text())
			cur = c.overlap(cur, n)
		}
		cur.push(s, n)
	}

	if len(cur.sentences) > 0 {
		last := cur.text()
		if EstimateTokens(last) >= c.cfg.MinChunkSize/4 {
			chunks = append(chunks, last)
		}
	}
	return chunks
}

// overlap 从已关闭分块尾部向前收集句子，直到达到重叠预算；
// 若重叠加上下一句仍超出分块预算，则从重叠头部继续丢弃句子。
func (c *Chunker) overlap(closed window, nextChars int) window {
	var (
		picked []string
		chars  int
	)
	for i := len(closed.sentences) - 1; i >= 0; i-- {
		s := closed.sentences[i]
		n := utf8.RuneCountInString(s)
		total := n
		if len(picked) > 0 {
			total = chars + 1 + n
		}
		if total/4 > c.cfg.ChunkOverlap {
			break
		}
		picked = append([]string{s}, picked...)
		chars = total
	}

	w := window{}
	for _, s := range picked {
		w.push(s, utf8.RuneCountInString(s))
	}
	for len(w.sentences) > 0 && w.tokensWith(nextChars) > c.cfg.ChunkSize {
		drop := utf8.RuneCountInString(w.sentences[0])
		w.sentences = w.sentences[1:]
		w.chars -= drop
		if len(w.sentences) > 0 {
			w.chars--
		} else {
			w.chars = 0
		}
	}
	return w
}
