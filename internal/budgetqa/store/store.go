// Package store 持久化带向量的分块，并按余弦相似度检索。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/budgetqa/internal/model"
)

var (
	// ErrDimensionMismatch 向量维度与集合配置不一致。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrUnavailable 存储不可用（包括熔断器打开）。
	ErrUnavailable = errors.New("vector store unavailable")
)

// SearchOptions 检索参数。
type SearchOptions struct {
	// TopK 最多返回的结果数。
	TopK int
	// Threshold 相似度阈值，只返回严格大于该值的结果。
	Threshold float64
	// Filter 元数据过滤条件，语义见 Matches。为空表示不过滤。
	Filter map[string]any
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// Upsert 按 chunk_id 写入或覆盖分块。
	Upsert(ctx context.Context, chunks []model.EmbeddedChunk) error

	// Search 返回按相似度降序排列的分块。
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]model.RetrievedChunk, error)

	// DeleteByDocument 删除某个文档的全部分块，返回删除数量。
	DeleteByDocument(ctx context.Context, documentName string) (int64, error)

	// Count 返回分块总数。
	Count(ctx context.Context) (int64, error)

	// Close 关闭存储。
	Close(ctx context.Context) error
}

// checkDimension 校验一批分块的向量维度。
func checkDimension(chunks []model.EmbeddedChunk, dim int) error {
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection expects %d",
				ErrDimensionMismatch, c.ChunkID, len(c.Embedding), dim)
		}
	}
	return nil
}
