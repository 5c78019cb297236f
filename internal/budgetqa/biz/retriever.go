package biz

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/internal/pkg/textutil"
)

// Retriever 负责向量检索。
type Retriever struct {
	embedder *Embedder
	store    store.VectorStore
	metrics  *metrics.Metrics
}

// NewRetriever 创建检索器。
func NewRetriever(embedder *Embedder, vectorStore store.VectorStore, m *metrics.Metrics) *Retriever {
	return &Retriever{embedder: embedder, store: vectorStore, metrics: m}
}

// Retrieve 返回相似度严格大于 threshold 的至多 topK 个分块，按相似度降序。
// 向量化或存储失败时返回空结果；只有维度不符这类配置错误会返回 error。
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64, filter map[string]any) ([]model.RetrievedChunk, error) {
	start := time.Now()
	logger.Infow("Retrieving context", "query", textutil.TruncateString(query, 100), "top_k", topK, "threshold", threshold)

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.metrics.RecordRetrieval(time.Since(start), 0, err)
		if errors.Is(err, store.ErrDimensionMismatch) {
			return nil, err
		}
		logger.Errorw("Query embedding failed", "error", err.Error())
		return []model.RetrievedChunk{}, nil
	}

	hits, err := r.store.Search(ctx, vec, store.SearchOptions{TopK: topK, Threshold: threshold, Filter: filter})
	if err != nil {
		r.metrics.RecordRetrieval(time.Since(start), 0, err)
		if errors.Is(err, store.ErrDimensionMismatch) {
			return nil, err
		}
		logger.Errorw("Similarity search failed", "error", err.Error())
		return []model.RetrievedChunk{}, nil
	}

	r.metrics.RecordRetrieval(time.Since(start), len(hits), nil)
	logger.Infow("Retrieved chunks",
		"num_results", len(hits),
		"avg_similarity", averageSimilarity(hits),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return hits, nil
}

func averageSimilarity(hits []model.RetrievedChunk) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Similarity
	}
	return sum / float64(len(hits))
}
