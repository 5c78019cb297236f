package model

// RetrievedChunk 检索命中的分块及其余弦相似度。
type RetrievedChunk struct {
	Chunk      TaggedChunk
	Similarity float64
}

// Source 答案引用的来源。
type Source struct {
	Document   string  `json:"document"`
	Page       int     `json:"page"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

// Answer 问答结果。
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ChatRequest 对话请求。
type ChatRequest struct {
	Message        string         `json:"message" binding:"required,notblank,max=1000"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserMetadata   map[string]any `json:"user_metadata,omitempty"`
}

// ChatResponse 对话响应。
type ChatResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// SearchRequest 语义检索请求（query string）。
type SearchRequest struct {
	Query     string   `form:"q" binding:"required,notblank,max=500"`
	Limit     int      `form:"limit,default=5" binding:"min=1,max=20"`
	Threshold *float64 `form:"threshold" binding:"omitempty,min=0,max=1"`
}

// SearchHit 单条检索结果。
type SearchHit struct {
	Text       string         `json:"text"`
	Document   string         `json:"document"`
	Page       int            `json:"page"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// SearchResponse 语义检索响应。
type SearchResponse struct {
	Results []SearchHit `json:"results"`
	Total   int         `json:"total"`
}

// HealthStatus 健康检查结果。
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Version    string            `json:"version"`
}
