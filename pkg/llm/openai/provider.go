// Package openai 提供兼容 OpenAI API 的 LLM 供应商实现。
// 同一实现以 "openai" 与 "groq" 两个名称注册，区别只在默认地址和模型。
//
// 基本用法：
//
//	import _ "github.com/kart-io/budgetqa/pkg/llm/openai"
//
//	provider, err := llm.NewProvider("groq", llm.Config{APIKey: key})
//	answer, err := provider.Generate(ctx, prompt, systemPrompt)
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/httpclient"
)

const (
	// ProviderName OpenAI 供应商名称。
	ProviderName = "openai"
	// GroqProviderName Groq（OpenAI 兼容接口）供应商名称。
	GroqProviderName = "groq"
)

func init() {
	llm.RegisterProvider(ProviderName, func(cfg llm.Config) (llm.Provider, error) {
		return NewProvider(ProviderName, DefaultConfig().Overlay(cfg))
	})
	llm.RegisterProvider(GroqProviderName, func(cfg llm.Config) (llm.Provider, error) {
		return NewProvider(GroqProviderName, GroqConfig().Overlay(cfg))
	})
}

// DefaultConfig 返回 OpenAI 默认配置。
func DefaultConfig() llm.Config {
	return llm.Config{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: llm.Retries(3),
	}
}

// GroqConfig 返回 Groq 默认配置。
func GroqConfig() llm.Config {
	return llm.Config{
		BaseURL:     "https://api.groq.com/openai/v1",
		ChatModel:   "llama-3.1-8b-instant",
		Temperature: 0.7,
		MaxTokens:   1024,
		Timeout:     60 * time.Second,
		MaxRetries:  llm.Retries(2),
	}
}

// Provider OpenAI 兼容供应商实现。
type Provider struct {
	name       string
	config     llm.Config
	client     *httpclient.Client
	// chatClient 不做传输层重试，chat 重试由上层生成器控制。
	chatClient *httpclient.Client
}

// NewProvider 使用完整配置创建供应商，缺少 API 密钥时返回 llm.ErrMissingAPIKey。
func NewProvider(name string, cfg llm.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, llm.ErrMissingAPIKey)
	}
	return &Provider{
		name:       name,
		config:     cfg,
		client:     httpclient.NewClient(cfg.Timeout, cfg.RetryCount()),
		chatClient: httpclient.NewClient(cfg.Timeout, 0),
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// embeddingRequest embedding API 请求体。
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse embedding API 响应体。
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	err := p.client.PostJSON(ctx, p.config.BaseURL+"/embeddings", p.headers(),
		embeddingRequest{Model: p.config.EmbedModel, Input: texts}, &resp)
	if err != nil {
		return nil, p.wrap(err)
	}

	// 按 index 排序确保顺序正确
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("%s: missing embedding for input %d: %w", p.name, i, llm.ErrEmptyResponse)
		}
	}
	return embeddings, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, p.Embed, text)
}

// chatRequest chat API 请求体。
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatResponse chat API 响应体。
type chatResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{
		Model:       p.config.ChatModel,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	var resp chatResponse
	if err := p.chatClient.PostJSON(ctx, p.config.BaseURL+"/chat/completions", p.headers(), req, &resp); err != nil {
		return "", p.wrap(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: %w", p.name, llm.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return p.Chat(ctx, llm.BuildMessages(prompt, systemPrompt))
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.config.APIKey}
}

// wrap 将 HTTP 429 转换为 llm.ErrRateLimited。
func (p *Provider) wrap(err error) error {
	if httpclient.IsStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", p.name, llm.ErrRateLimited, err)
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return fmt.Errorf("%s: request failed: %w", p.name, err)
}
