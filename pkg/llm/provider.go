// Package llm 提供统一的 LLM 供应商抽象层。
// Embedding 与 Chat 可以使用不同供应商的模型。
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRateLimited 供应商返回限流（HTTP 429 或等价错误）。
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrUnavailable 供应商暂不可用（熔断器打开）。
	ErrUnavailable = errors.New("llm: provider unavailable")
	// ErrEmptyResponse 供应商未返回内容。
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMissingAPIKey 供应商需要 API 密钥但未配置。
	ErrMissingAPIKey = errors.New("llm: api key is required")
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，返回顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义 Chat 供应商接口。
type ChatProvider interface {
	// Chat 进行多轮对话。
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate 根据提示生成文本（单轮）。
	Generate(ctx context.Context, prompt string, systemPrompt string) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider 同时支持 Embedding 和 Chat 的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Config 供应商通用配置，各供应商只读取自己关心的字段，零值表示使用供应商默认值。
type Config struct {
	BaseURL     string
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// MaxRetries 仅作用于 embedding 等非 chat 请求，nil 表示使用供应商默认值。
	// chat 请求的重试由调用方负责，传输层固定不重试。
	MaxRetries *int
}

// Retries 返回指向 n 的指针，便于显式设置 Config.MaxRetries（包括 0）。
func Retries(n int) *int {
	return &n
}

// RetryCount 返回传输层重试次数，未设置时为 0。
func (c Config) RetryCount() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// Overlay 用 override 中的非零字段覆盖 c，返回新配置。MaxRetries 非 nil 即覆盖，显式 0 同样生效。
func (c Config) Overlay(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		c.APIKey = override.APIKey
	}
	if override.EmbedModel != "" {
		c.EmbedModel = override.EmbedModel
	}
	if override.ChatModel != "" {
		c.ChatModel = override.ChatModel
	}
	if override.Temperature > 0 {
		c.Temperature = override.Temperature
	}
	if override.MaxTokens > 0 {
		c.MaxTokens = override.MaxTokens
	}
	if override.Timeout > 0 {
		c.Timeout = override.Timeout
	}
	if override.MaxRetries != nil {
		c.MaxRetries = Retries(*override.MaxRetries)
	}
	return c
}

// BuildMessages 组装系统提示与用户提示。
func BuildMessages(prompt, systemPrompt string) []Message {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(messages, Message{Role: RoleUser, Content: prompt})
}

// EmbedOne 通过批量接口嵌入单个文本，供各供应商实现 EmbedSingle。
func EmbedOne(ctx context.Context, embed func(context.Context, []string) ([][]float32, error), text string) ([]float32, error) {
	vecs, err := embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrEmptyResponse
	}
	return vecs[0], nil
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(cfg Config) (Provider, error)

// registry 供应商注册表。
var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider 注册供应商工厂，重复注册时后者覆盖前者。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider 根据名称创建供应商实例。
func NewProvider(name string, cfg Config) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (registered: %v)", name, ListProviders())
	}
	return factory(cfg)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, cfg Config) (EmbeddingProvider, error) {
	return NewProvider(name, cfg)
}

// NewChatProvider 根据名称创建 Chat 供应商实例。
func NewChatProvider(name string, cfg Config) (ChatProvider, error) {
	return NewProvider(name, cfg)
}

// ListProviders 列出所有已注册的供应商名称（已排序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
