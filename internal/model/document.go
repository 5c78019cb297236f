// Package model defines the data models shared by the budgetqa packages.
package model

import "time"

// ExtractionMethod 标识产生文档文本的提取引擎。
type ExtractionMethod string

const (
	// ExtractionPrimary 主提取引擎。
	ExtractionPrimary ExtractionMethod = "primary"
	// ExtractionFallback 备用提取引擎（版面分析）。
	ExtractionFallback ExtractionMethod = "fallback"
)

// PageContent 单页提取结果，创建后不可修改。
type PageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	WordCount  int    `json:"word_count"`
	HasTables  bool   `json:"has_tables"`
	HasImages  bool   `json:"has_images"`
}

// DocumentStats 文档级聚合统计。
type DocumentStats struct {
	TotalChars      int `json:"total_chars"`
	TotalWords      int `json:"total_words"`
	PagesWithTables int `json:"pages_with_tables"`
	PagesWithImages int `json:"pages_with_images"`
}

// ExtractedDocument 一个源文件的提取结果，以 FileHash 唯一标识。
type ExtractedDocument struct {
	Filename         string           `json:"filename"`
	FilePath         string           `json:"file_path"`
	FileSizeMB       float64          `json:"file_size_mb"`
	TotalPages       int              `json:"total_pages"`
	Pages            []PageContent    `json:"pages"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	FileHash         string           `json:"file_hash"`
	ExtractedAt      time.Time        `json:"extracted_at"`
	ProcessingTime   float64          `json:"processing_time_seconds"`
	Metadata         DocumentStats    `json:"metadata"`
}

// NewPageContent builds a PageContent with its character and word counts.
func NewPageContent(pageNumber int, text string, hasTables, hasImages bool) PageContent {
	return PageContent{
		PageNumber: pageNumber,
		Text:       text,
		CharCount:  len([]rune(text)),
		WordCount:  WordCount(text),
		HasTables:  hasTables,
		HasImages:  hasImages,
	}
}

// Aggregate computes the document statistics from its pages.
func Aggregate(pages []PageContent) DocumentStats {
	var s DocumentStats
	for _, p := range pages {
		s.TotalChars += p.CharCount
		s.TotalWords += p.WordCount
		if p.HasTables {
			s.PagesWithTables++
		}
		if p.HasImages {
			s.PagesWithImages++
		}
	}
	return s
}

// DocumentRecord 已导入文档的登记记录，用于按 file_hash 检测重复导入。
type DocumentRecord struct {
	FileHash         string    `json:"file_hash" gorm:"primaryKey;type:varchar(64)"`
	Filename         string    `json:"filename" gorm:"type:varchar(255);index;not null"`
	TotalPages       int       `json:"total_pages" gorm:"default:0"`
	TotalChunks      int       `json:"total_chunks" gorm:"default:0"`
	ExtractionMethod string    `json:"extraction_method" gorm:"type:varchar(16)"`
	IngestedAt       time.Time `json:"ingested_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for DocumentRecord.
func (DocumentRecord) TableName() string {
	return "budget_documents"
}
