package biz

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/budgetqa/internal/budgetqa/extract"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/llm"
)

// keywordEmbedder 以关键词出现次数构造三维向量：[tax, farm, 1]。
type keywordEmbedder struct {
	calls  atomic.Int32
	mu     sync.Mutex
	sizes  []int
	inputs []string
	err    error
	dim    int
}

func (k *keywordEmbedder) Name() string { return "keyword" }

func (k *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := []float32{float32(strings.Count(lower, "tax")), float32(strings.Count(lower, "farm")), 1}
	if k.dim > 0 {
		v = make([]float32, k.dim)
		v[0] = 1
	}
	return v
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls.Add(1)
	k.mu.Lock()
	k.sizes = append(k.sizes, len(texts))
	k.inputs = append(k.inputs, texts...)
	k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := k.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func newTestEmbedder(p llm.EmbeddingProvider) *Embedder {
	cfg := DefaultEmbedderConfig()
	cfg.Model = "keyword"
	cfg.Dimension = 3
	return NewEmbedder(func() (llm.EmbeddingProvider, error) { return p, nil }, cfg, nil)
}

// scriptedChat 按顺序返回预设结果，超出脚本后返回最后一项。
type scriptedChat struct {
	mu       sync.Mutex
	results  []chatResult
	messages [][]llm.Message
}

type chatResult struct {
	text string
	err  error
}

func (s *scriptedChat) Name() string { return "scripted" }

func (s *scriptedChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages)
	r := s.results[min(len(s.messages), len(s.results))-1]
	return r.text, r.err
}

func (s *scriptedChat) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return s.Chat(ctx, llm.BuildMessages(prompt, systemPrompt))
}

func (s *scriptedChat) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *scriptedChat) lastUserPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[len(s.messages)-1]
	return msgs[len(msgs)-1].Content
}

// memoryCache 进程内 llm.CacheStore。
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// staticExtractor 返回预设的提取结果。
type staticExtractor struct {
	result *extract.BatchResult
}

func (s staticExtractor) ExtractBatch(context.Context, string) (*extract.BatchResult, error) {
	return s.result, nil
}

func document(name, hash string, pages ...string) *model.ExtractedDocument {
	doc := &model.ExtractedDocument{
		Filename:         name,
		FilePath:         "/data/" + name,
		FileHash:         hash,
		ExtractionMethod: model.ExtractionPrimary,
		TotalPages:       len(pages),
	}
	for i, p := range pages {
		doc.Pages = append(doc.Pages, model.NewPageContent(i+1, p, false, false))
	}
	doc.Metadata = model.Aggregate(doc.Pages)
	return doc
}

func retrieved(doc string, page int, text string, sim float64) model.RetrievedChunk {
	return model.RetrievedChunk{
		Chunk: model.TaggedChunk{TextChunk: model.TextChunk{
			ChunkID:      doc + "_p1_c0",
			DocumentName: doc,
			PageNumber:   page,
			Text:         text,
		}},
		Similarity: sim,
	}
}
