package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

const testAPIKey = "test-key"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := GroqConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = testAPIKey
	cfg.MaxRetries = llm.Retries(0)
	p, err := NewProvider(GroqProviderName, cfg)
	require.NoError(t, err)
	return p
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(GroqProviderName, GroqConfig())
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	_, err = llm.NewChatProvider(GroqProviderName, llm.Config{})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestRegistry_GroqDefaults(t *testing.T) {
	p, err := llm.NewProvider(GroqProviderName, llm.Config{APIKey: testAPIKey, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, GroqProviderName, p.Name())

	gp := p.(*Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", gp.config.BaseURL)
	assert.Equal(t, "llama-3.1-8b-instant", gp.config.ChatModel)
	assert.Equal(t, 256, gp.config.MaxTokens)
	assert.InDelta(t, 0.7, gp.config.Temperature, 1e-9)
}

func TestProvider_Embed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		// 乱序返回，验证按 index 归位
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[0.4,0.5],"index":1},
			{"embedding":[0.1,0.2],"index":0}
		]}`))
	})

	embeddings, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, embeddings[0])
	assert.Equal(t, []float32{0.4, 0.5}, embeddings[1])
}

func TestProvider_EmbedMissingIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	})

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestProvider_Generate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.1-8b-instant", req.Model)
		assert.Equal(t, 1024, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, "What is 80C?", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A deduction."}}]}`))
	})

	answer, err := p.Generate(context.Background(), "What is 80C?", "You are a budget assistant.")
	require.NoError(t, err)
	assert.Equal(t, "A deduction.", answer)
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, llm.ErrRateLimited},
		{"no choices", http.StatusOK, `{"choices":[]}`, llm.ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := p.Generate(context.Background(), "q", "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unauthorized is not rate limited", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := p.Generate(context.Background(), "q", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, llm.ErrRateLimited)
	})
}

func TestProvider_ChatDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	// 即使配置了传输层重试，chat 也只发一次请求
	cfg := GroqConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = testAPIKey
	cfg.MaxRetries = llm.Retries(3)
	p, err := NewProvider(GroqProviderName, cfg)
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
