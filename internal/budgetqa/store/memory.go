package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// MemoryStore 基于内存的暴力余弦检索，可选地持久化为快照文件。
type MemoryStore struct {
	mu       sync.RWMutex
	dim      int
	chunks   map[string]model.EmbeddedChunk
	snapshot string
}

// NewMemoryStore 创建内存存储。snapshot 非空时从该文件加载已有数据，并在 Close 时写回。
func NewMemoryStore(dim int, snapshot string) (*MemoryStore, error) {
	s := &MemoryStore{
		dim:      dim,
		chunks:   make(map[string]model.EmbeddedChunk),
		snapshot: snapshot,
	}
	if snapshot == "" {
		return s, nil
	}

	data, err := os.ReadFile(snapshot)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var chunks []model.EmbeddedChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snapshot, err)
	}
	if err := checkDimension(chunks, dim); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
	}
	logger.Infow("Loaded vector snapshot", "path", snapshot, "chunks", len(chunks))
	return s, nil
}

// Upsert implements VectorStore.
func (s *MemoryStore) Upsert(_ context.Context, chunks []model.EmbeddedChunk) error {
	if err := checkDimension(chunks, s.dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
	}
	return nil
}

// Search implements VectorStore.
func (s *MemoryStore) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]model.RetrievedChunk, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	if opts.TopK <= 0 {
		return []model.RetrievedChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]model.RetrievedChunk, 0)
	for _, c := range s.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sim := textutil.CosineSimilarity(embedding, c.Embedding)
		if sim <= opts.Threshold {
			continue
		}
		if len(opts.Filter) > 0 && !Matches(c.Metadata.Payload(), opts.Filter) {
			continue
		}
		hits = append(hits, model.RetrievedChunk{Chunk: c.TaggedChunk, Similarity: sim})
	}

	sortHits(hits)
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// DeleteByDocument implements VectorStore.
func (s *MemoryStore) DeleteByDocument(_ context.Context, documentName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.chunks {
		if c.DocumentName == documentName {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

// Count implements VectorStore.
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

// Save 将当前数据写入快照文件，按 chunk_id 排序。
func (s *MemoryStore) Save() error {
	if s.snapshot == "" {
		return nil
	}

	s.mu.RLock()
	chunks := make([]model.EmbeddedChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	s.mu.RUnlock()
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkID < chunks[j].ChunkID })

	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshot), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.snapshot + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.snapshot)
}

// Close implements VectorStore.
func (s *MemoryStore) Close(context.Context) error {
	return s.Save()
}

// sortHits 按相似度降序排序，相同相似度按 chunk_id 升序。
func sortHits(hits []model.RetrievedChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
}

var _ VectorStore = (*MemoryStore)(nil)
