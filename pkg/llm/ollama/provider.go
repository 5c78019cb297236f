// Package ollama 提供 Ollama LLM 供应商实现。
// 默认 embedding 模型 all-minilm 输出 384 维向量。
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/httpclient"
)

const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, func(cfg llm.Config) (llm.Provider, error) {
		return NewProvider(DefaultConfig().Overlay(cfg)), nil
	})
}

// DefaultConfig 返回默认配置。
func DefaultConfig() llm.Config {
	return llm.Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "all-minilm",
		ChatModel:  "llama3.1:8b",
		Timeout:    120 * time.Second,
		MaxRetries: llm.Retries(3),
	}
}

// Provider Ollama 供应商实现。
type Provider struct {
	config     llm.Config
	client     *httpclient.Client
	// chatClient 不做传输层重试，chat 重试由上层生成器控制。
	chatClient *httpclient.Client
}

// NewProvider 使用配置创建 Ollama 供应商。
func NewProvider(cfg llm.Config) *Provider {
	return &Provider{
		config:     cfg,
		client:     httpclient.NewClient(cfg.Timeout, cfg.RetryCount()),
		chatClient: httpclient.NewClient(cfg.Timeout, 0),
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/embed", nil,
		embedRequest{Model: p.config.EmbedModel, Input: texts}, &resp)
	if err != nil {
		return nil, wrap(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs: %w",
			len(resp.Embeddings), len(texts), llm.ErrEmptyResponse)
	}
	return resp.Embeddings, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, p.Embed, text)
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{
		Model:    p.config.ChatModel,
		Messages: messages,
	}
	if p.config.Temperature > 0 || p.config.MaxTokens > 0 {
		req.Options = &chatOptions{Temperature: p.config.Temperature, NumPredict: p.config.MaxTokens}
	}

	var resp chatResponse
	if err := p.chatClient.PostJSON(ctx, p.config.BaseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", wrap(err)
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("ollama: %w", llm.ErrEmptyResponse)
	}
	return resp.Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return p.Chat(ctx, llm.BuildMessages(prompt, systemPrompt))
}

// ListModels 列出本地可用模型，也用作健康检查。
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.client.GetJSON(ctx, p.config.BaseURL+"/api/tags", &result); err != nil {
		return nil, wrap(err)
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}

func wrap(err error) error {
	if httpclient.IsStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("ollama: %w: %v", llm.ErrRateLimited, err)
	}
	return fmt.Errorf("ollama: %w", err)
}
