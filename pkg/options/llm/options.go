// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// apiKeyEnv 各供应商读取 API 密钥的环境变量。
var apiKeyEnv = map[string]string{
	"groq":   "GROQ_API_KEY",
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// name 用于 flag 前缀（embedding / chat）。
	name string

	// Provider 供应商名称（groq, openai, ollama, gemini）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，空值使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，空值时读取供应商对应的环境变量。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Temperature 采样温度，仅 chat 使用。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 最大生成 token 数，仅 chat 使用。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 传输层最大重试次数，仅 embedding 使用；chat 的重试由生成器负责。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// RequestsPerSecond 客户端限流，0 表示不限流。
	RequestsPerSecond float64 `json:"requests-per-second" mapstructure:"requests-per-second"`

	// Burst 限流突发容量。
	Burst int `json:"burst" mapstructure:"burst"`
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
// all-minilm 输出 384 维向量。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		name:       "embedding",
		Provider:   "ollama",
		Model:      "all-minilm",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
		Burst:      1,
	}
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	return &ProviderOptions{
		name:              "chat",
		Provider:          "groq",
		Model:             "llama-3.1-8b-instant",
		Temperature:       0.7,
		MaxTokens:         1024,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 0.5,
		Burst:             2,
	}
}

// ToConfig 转换为供应商工厂使用的配置。
func (o *ProviderOptions) ToConfig() llm.Config {
	return llm.Config{
		BaseURL:     o.BaseURL,
		APIKey:      o.APIKey,
		EmbedModel:  o.Model,
		ChatModel:   o.Model,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Timeout:     o.Timeout,
		MaxRetries:  llm.Retries(o.MaxRetries),
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(append(prefixes, o.name)...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, fmt.Sprintf("LLM provider for %s (groq, openai, ollama, gemini).", o.name))
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "API base URL, empty for the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key, empty to read the provider environment variable.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Request timeout.")
	fs.Float64Var(&o.RequestsPerSecond, p+"requests-per-second", o.RequestsPerSecond, "Client side rate limit, 0 disables it.")
	fs.IntVar(&o.Burst, p+"burst", o.Burst, "Rate limiter burst.")
	if o.name == "chat" {
		fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
		fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum tokens to generate.")
	} else {
		fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Transport retries on network errors and 5xx responses.")
	}
}

// Complete fills the API key from the provider environment variable.
func (o *ProviderOptions) Complete() error {
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	if o.APIKey == "" {
		if env, ok := apiKeyEnv[o.Provider]; ok {
			o.APIKey = os.Getenv(env)
		}
	}
	if o.Burst < 1 {
		o.Burst = 1
	}
	return nil
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("%s.provider is required", o.name))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", o.name))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", o.name))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%s.temperature must be within [0, 2]", o.name))
	}
	if o.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s.requests-per-second cannot be negative", o.name))
	}
	return errs
}
