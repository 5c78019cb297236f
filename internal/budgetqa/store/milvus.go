package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/component/milvus"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

const (
	fieldChunkID      = "chunk_id"
	fieldEmbedding    = "embedding"
	fieldDocumentName = "document_name"
	fieldPageNumber   = "page_number"
	fieldChunkIndex   = "chunk_index"
	fieldText         = "text"
	fieldCharCount    = "char_count"
	fieldWordCount    = "word_count"
	fieldTokenCount   = "token_count"
	fieldQuality      = "quality_score"
	fieldMetadata     = "metadata"

	// oversample 过滤条件无法完全下推时扩大召回数量的倍数。
	oversample = 4
	maxLimit   = 16384
)

var outputFields = []string{
	fieldDocumentName, fieldPageNumber, fieldChunkIndex, fieldText,
	fieldCharCount, fieldWordCount, fieldTokenCount, fieldQuality, fieldMetadata,
}

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
	dim        int
	ef         int
}

// NewMilvusStore 创建 Milvus 存储实例，集合不存在时自动创建。
func NewMilvusStore(ctx context.Context, client *milvus.Client, dim int) (*MilvusStore, error) {
	opts := client.Options()
	schema := &milvus.CollectionSchema{
		Name:           opts.Collection,
		Description:    "Embedded budget document chunks",
		PrimaryKey:     fieldChunkID,
		VectorField:    fieldEmbedding,
		Dimension:      dim,
		M:              opts.IndexM,
		EfConstruction: opts.IndexEfConstruction,
		Fields: []milvus.Field{
			{Name: fieldDocumentName, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldPageNumber, DataType: entity.FieldTypeInt64},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldText, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldCharCount, DataType: entity.FieldTypeInt64},
			{Name: fieldWordCount, DataType: entity.FieldTypeInt64},
			{Name: fieldTokenCount, DataType: entity.FieldTypeInt64},
			{Name: fieldQuality, DataType: entity.FieldTypeFloat},
			{Name: fieldMetadata, DataType: entity.FieldTypeJSON},
		},
	}
	if err := client.EnsureCollection(ctx, schema); err != nil {
		return nil, err
	}

	return &MilvusStore{
		client:     client,
		collection: opts.Collection,
		dim:        dim,
		ef:         opts.SearchEf,
	}, nil
}

// Upsert implements VectorStore.
func (s *MilvusStore) Upsert(ctx context.Context, chunks []model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := checkDimension(chunks, s.dim); err != nil {
		return err
	}

	n := len(chunks)
	var (
		ids        = make([]string, n)
		embeddings = make([][]float32, n)
		docs       = make([]string, n)
		pages      = make([]int64, n)
		indexes    = make([]int64, n)
		texts      = make([]string, n)
		chars      = make([]int64, n)
		words      = make([]int64, n)
		tokens     = make([]int64, n)
		quality    = make([]float32, n)
		metadata   = make([][]byte, n)
	)
	for i, c := range chunks {
		raw, err := json.Marshal(c.Metadata.Payload())
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", c.ChunkID, err)
		}
		ids[i] = c.ChunkID
		embeddings[i] = c.Embedding
		docs[i] = c.DocumentName
		pages[i] = int64(c.PageNumber)
		indexes[i] = int64(c.ChunkIndex)
		texts[i] = c.Text
		chars[i] = int64(c.CharCount)
		words[i] = int64(c.WordCount)
		tokens[i] = int64(c.TokenCount)
		quality[i] = float32(c.QualityScore)
		metadata[i] = raw
	}

	_, err := s.client.Upsert(ctx, s.collection,
		column.NewColumnVarChar(fieldChunkID, ids),
		column.NewColumnFloatVector(fieldEmbedding, s.dim, embeddings),
		column.NewColumnVarChar(fieldDocumentName, docs),
		column.NewColumnInt64(fieldPageNumber, pages),
		column.NewColumnInt64(fieldChunkIndex, indexes),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnInt64(fieldCharCount, chars),
		column.NewColumnInt64(fieldWordCount, words),
		column.NewColumnInt64(fieldTokenCount, tokens),
		column.NewColumnFloat(fieldQuality, quality),
		column.NewColumnJSONBytes(fieldMetadata, metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

// Search implements VectorStore.
// 可下推的过滤条件作为 Milvus 表达式执行，结果仍在本地按同一规则复核。
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]model.RetrievedChunk, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	if opts.TopK <= 0 {
		return []model.RetrievedChunk{}, nil
	}

	limit := opts.TopK
	var expr string
	if len(opts.Filter) > 0 {
		var complete bool
		expr, complete = buildExpr(fieldMetadata, opts.Filter)
		if !complete {
			limit = min(opts.TopK*oversample, maxLimit)
		}
	}

	rs, err := s.client.Search(ctx, s.collection, &milvus.SearchRequest{
		VectorField:  fieldEmbedding,
		Vector:       embedding,
		TopK:         limit,
		Filter:       expr,
		OutputFields: outputFields,
		Ef:           max(s.ef, limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	hits, err := decodeResults(rs)
	if err != nil {
		return nil, err
	}

	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Similarity <= opts.Threshold {
			continue
		}
		if len(opts.Filter) > 0 && !Matches(h.Chunk.Metadata.Payload(), opts.Filter) {
			continue
		}
		out = append(out, h)
	}
	sortHits(out)
	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out, nil
}

func decodeResults(rs milvusclient.ResultSet) ([]model.RetrievedChunk, error) {
	hits := make([]model.RetrievedChunk, rs.ResultCount)
	if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
		for i, id := range idCol.Data() {
			if i < len(hits) {
				hits[i].Chunk.ChunkID = id
			}
		}
	}
	for i := range hits {
		hits[i].Similarity = float64(rs.Scores[i])
	}

	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			for i, v := range col.Data() {
				switch col.Name() {
				case fieldDocumentName:
					hits[i].Chunk.DocumentName = v
				case fieldText:
					hits[i].Chunk.Text = v
				}
			}
		case *column.ColumnInt64:
			for i, v := range col.Data() {
				switch col.Name() {
				case fieldPageNumber:
					hits[i].Chunk.PageNumber = int(v)
				case fieldChunkIndex:
					hits[i].Chunk.ChunkIndex = int(v)
				case fieldCharCount:
					hits[i].Chunk.CharCount = int(v)
				case fieldWordCount:
					hits[i].Chunk.WordCount = int(v)
				case fieldTokenCount:
					hits[i].Chunk.TokenCount = int(v)
				}
			}
		case *column.ColumnFloat:
			for i, v := range col.Data() {
				hits[i].Chunk.QualityScore = float64(v)
			}
		case *column.ColumnJSONBytes:
			for i, raw := range col.Data() {
				var payload map[string]any
				if err := json.Unmarshal(raw, &payload); err != nil {
					return nil, fmt.Errorf("decode metadata of %s: %w", hits[i].Chunk.ChunkID, err)
				}
				hits[i].Chunk.Metadata = model.MetadataFromPayload(payload)
			}
		}
	}
	return hits, nil
}

// DeleteByDocument implements VectorStore.
func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentName string) (int64, error) {
	n, err := s.client.DeleteByExpr(ctx, s.collection, fmt.Sprintf("%s == %q", fieldDocumentName, documentName))
	if err != nil {
		return 0, err
	}
	logger.Debugw("Deleted previous chunks", "document", documentName, "count", n)
	return n, nil
}

// Count implements VectorStore.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.Count(ctx, s.collection)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
