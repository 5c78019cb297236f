// Package gemini 提供基于 Google Generative AI SDK 的 Gemini 供应商实现。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/budgetqa/pkg/llm"
)

const ProviderName = "gemini"

// maxBatchEmbed 单次 BatchEmbedContents 请求的最大文本数。
const maxBatchEmbed = 100

func init() {
	llm.RegisterProvider(ProviderName, func(cfg llm.Config) (llm.Provider, error) {
		return NewProvider(context.Background(), DefaultConfig().Overlay(cfg))
	})
}

// DefaultConfig 返回默认配置。
func DefaultConfig() llm.Config {
	return llm.Config{
		EmbedModel:  "text-embedding-004",
		ChatModel:   "gemini-2.0-flash",
		Temperature: 0.7,
		MaxTokens:   1024,
		Timeout:     120 * time.Second,
	}
}

// Provider Gemini 供应商实现。
type Provider struct {
	config llm.Config
	client *genai.Client
}

// NewProvider 创建 Gemini 供应商，BaseURL 非空时作为自定义端点。
func NewProvider(ctx context.Context, cfg llm.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrMissingAPIKey)
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{config: cfg, client: client}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Close 释放底层客户端。
func (p *Provider) Close() error {
	return p.client.Close()
}

// Embed 为多个文本生成向量嵌入，超过单批上限时分批请求。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	em := p.client.EmbeddingModel(p.config.EmbedModel)
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchEmbed {
		end := min(start+maxBatchEmbed, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, wrap(err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini: got %d embeddings for %d inputs: %w",
				len(resp.Embeddings), end-start, llm.ErrEmptyResponse)
		}
		for _, e := range resp.Embeddings {
			embeddings = append(embeddings, e.Values)
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.EmbeddingModel(p.config.EmbedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrap(err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	return resp.Embedding.Values, nil
}

// Chat 进行多轮对话，最后一条消息作为本轮输入，system 消息合并为 SystemInstruction。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, history, last, err := splitMessages(messages)
	if err != nil {
		return "", err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	cs := p.model(system).StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", wrap(err)
	}
	return responseText(resp)
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.model(systemPrompt).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrap(err)
	}
	return responseText(resp)
}

func (p *Provider) model(system string) *genai.GenerativeModel {
	model := p.client.GenerativeModel(p.config.ChatModel)
	if p.config.Temperature > 0 {
		model.SetTemperature(float32(p.config.Temperature))
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.config.MaxTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

// splitMessages 将通用消息转换为 genai 历史记录。
func splitMessages(messages []llm.Message) (string, []*genai.Content, string, error) {
	var systems []string
	var turns []llm.Message
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			systems = append(systems, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != llm.RoleUser {
		return "", nil, "", errors.New("gemini: last message must come from the user")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(systems, "\n\n"), history, turns[len(turns)-1].Content, nil
}

// responseText 拼接首个候选结果中的文本片段。
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	return sb.String(), nil
}

// wrap 将配额耗尽类错误转换为 llm.ErrRateLimited。
func wrap(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini: %w: %v", llm.ErrRateLimited, err)
	}
	if status.Code(err) == codes.ResourceExhausted {
		return fmt.Errorf("gemini: %w: %v", llm.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
