package model

import (
	"strings"
	"unicode"
)

// IncomeRanges is the closed set of normalized income buckets.
var IncomeRanges = []string{"0-5L", "10-15L", "15L+", "5-10L"}

// IsIncomeRange reports whether s is one of the normalized income buckets.
func IsIncomeRange(s string) bool {
	for _, r := range IncomeRanges {
		if r == s {
			return true
		}
	}
	return false
}

// TextChunk 文本分块，chunk_id 由文档、页码和序号确定。
type TextChunk struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentName string  `json:"document_name"`
	PageNumber   int     `json:"page_number"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	CharCount    int     `json:"char_count"`
	WordCount    int     `json:"word_count"`
	TokenCount   int     `json:"token_count"`
	QualityScore float64 `json:"quality_score"`
}

// Topic 层级主题标签。
type Topic struct {
	Main    string `json:"main" yaml:"main"`
	Sub     string `json:"sub" yaml:"sub"`
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
}

// ChunkMetadata 分块的标签元数据。
type ChunkMetadata struct {
	Topics          []Topic  `json:"topics"`
	UserTypes       []string `json:"user_types"`
	Sectors         []string `json:"sectors"`
	IncomeRanges    []string `json:"income_ranges"`
	Keywords        []string `json:"keywords"`
	PipelineVersion string   `json:"pipeline_version"`
	CreatedAt       string   `json:"created_at"`
}

// TaggedChunk 分块与其元数据（附加而非合并）。
type TaggedChunk struct {
	TextChunk
	Metadata ChunkMetadata `json:"metadata"`
}

// EmbeddedChunk 带向量的分块，用于写入向量库。
type EmbeddedChunk struct {
	TaggedChunk
	Embedding          []float32 `json:"embedding"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingDimension int       `json:"embedding_dimension"`
}

// Payload returns the metadata as a generic document, the shape used for
// vector store payloads and metadata filters.
func (m ChunkMetadata) Payload() map[string]any {
	topics := make([]any, 0, len(m.Topics))
	for _, t := range m.Topics {
		topic := map[string]any{"main": t.Main, "sub": t.Sub}
		if t.Section != "" {
			topic["section"] = t.Section
		}
		topics = append(topics, topic)
	}
	return map[string]any{
		"topics":           topics,
		"user_types":       toAny(m.UserTypes),
		"sectors":          toAny(m.Sectors),
		"income_ranges":    toAny(m.IncomeRanges),
		"keywords":         toAny(m.Keywords),
		"pipeline_version": m.PipelineVersion,
		"created_at":       m.CreatedAt,
	}
}

// MetadataFromPayload is the inverse of ChunkMetadata.Payload.
// Unknown or mistyped fields are ignored.
func MetadataFromPayload(p map[string]any) ChunkMetadata {
	m := ChunkMetadata{
		UserTypes:    toStrings(p["user_types"]),
		Sectors:      toStrings(p["sectors"]),
		IncomeRanges: toStrings(p["income_ranges"]),
		Keywords:     toStrings(p["keywords"]),
	}
	m.PipelineVersion, _ = p["pipeline_version"].(string)
	m.CreatedAt, _ = p["created_at"].(string)
	if list, ok := p["topics"].([]any); ok {
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var t Topic
			t.Main, _ = obj["main"].(string)
			t.Sub, _ = obj["sub"].(string)
			t.Section, _ = obj["section"].(string)
			m.Topics = append(m.Topics, t)
		}
	}
	return m
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.FieldsFunc(text, unicode.IsSpace))
}
