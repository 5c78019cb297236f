package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/llm"
	"github.com/kart-io/budgetqa/pkg/llm/openai"
)

func fastGenerator(chat llm.ChatProvider, m *metrics.Metrics) *Generator {
	cfg := DefaultGeneratorConfig()
	cfg.RetryBackoff = 10 * time.Millisecond
	return NewGenerator(chat, cfg, m)
}

func TestGenerator_NoContextWhenNothingAboveThreshold(t *testing.T) {
	s, err := store.NewMemoryStore(3, "")
	require.NoError(t, err)
	// 与查询 [1,0,0] 的余弦相似度约为 0.4
	require.NoError(t, s.Upsert(context.Background(), []model.EmbeddedChunk{{
		TaggedChunk: model.TaggedChunk{TextChunk: model.TextChunk{ChunkID: "a.pdf_p1_c0", DocumentName: "a.pdf", PageNumber: 1, Text: "farm support"}},
		Embedding:   []float32{0.4, float32(math.Sqrt(0.84)), 0},
	}}))

	e := NewEmbedder(func() (llm.EmbeddingProvider, error) {
		return &keywordEmbedder{dim: 3}, nil
	}, EmbedderConfig{Dimension: 3, BatchSize: 100, MaxChars: 8000}, nil)
	r := NewRetriever(e, s, nil)

	hits, err := r.Retrieve(context.Background(), "what about farmers?", 5, 0.9, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	loose, err := r.Retrieve(context.Background(), "what about farmers?", 5, 0.3, nil)
	require.NoError(t, err)
	require.Len(t, loose, 1)
	assert.InDelta(t, 0.4, loose[0].Similarity, 1e-6)

	chat := &scriptedChat{results: []chatResult{{text: "Not covered, see indiabudget.gov.in"}}}
	answer := fastGenerator(chat, nil).Answer(context.Background(), "what about farmers?", hits)

	assert.Equal(t, "Not covered, see indiabudget.gov.in", answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, NoContextPrompt("what about farmers?"), chat.lastUserPrompt())
	assert.Contains(t, chat.lastUserPrompt(), "I don't have specific information")
}

func TestGenerator_RetryMachine(t *testing.T) {
	rateLimited := fmt.Errorf("groq: %w", llm.ErrRateLimited)
	tests := []struct {
		name      string
		script    []chatResult
		want      string
		wantCalls int
		retries   string
		fallbacks string
	}{
		{
			name:      "success first time",
			script:    []chatResult{{text: "answer"}},
			want:      "answer",
			wantCalls: 1,
			retries:   "0",
			fallbacks: "0",
		},
		{
			name:      "rate limited then success",
			script:    []chatResult{{err: rateLimited}, {text: "second try"}},
			want:      "second try",
			wantCalls: 2,
			retries:   "1",
			fallbacks: "0",
		},
		{
			name:      "rate limited twice",
			script:    []chatResult{{err: rateLimited}, {err: errors.New("still failing")}},
			want:      FallbackAnswer,
			wantCalls: 2,
			retries:   "1",
			fallbacks: "1",
		},
		{
			name:      "other failure is not retried",
			script:    []chatResult{{err: errors.New("connection reset")}, {text: "never"}},
			want:      FallbackAnswer,
			wantCalls: 1,
			retries:   "0",
			fallbacks: "1",
		},
		{
			name:      "open breaker is not retried",
			script:    []chatResult{{err: llm.ErrUnavailable}},
			want:      FallbackAnswer,
			wantCalls: 1,
			retries:   "0",
			fallbacks: "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			chat := &scriptedChat{results: tt.script}
			answer := fastGenerator(chat, m).Answer(context.Background(), "q", nil)

			assert.Equal(t, tt.want, answer.Answer)
			assert.Equal(t, tt.wantCalls, chat.calls())
			out := m.Export("t")
			assert.Contains(t, out, "t_llm_retries_total "+tt.retries+"\n")
			assert.Contains(t, out, "t_llm_fallbacks_total "+tt.fallbacks+"\n")
		})
	}
}

func TestGenerator_CancelledDuringBackoff(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{err: llm.ErrRateLimited}, {text: "late"}}}
	g := NewGenerator(chat, GeneratorConfig{MaxContextChunks: 3, RetryBackoff: time.Hour, ExcerptLength: 200}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	answer := g.Answer(ctx, "q", nil)
	assert.Equal(t, FallbackAnswer, answer.Answer)
	assert.Equal(t, 1, chat.calls())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGenerator_ContextAndSources(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunks := []model.RetrievedChunk{
		retrieved("low.pdf", 9, "low", 0.31),
		retrieved("best.pdf", 1, long, 0.87654),
		retrieved("mid.pdf", 4, "middle text", 0.5),
		retrieved("second.pdf", 2, "second text", 0.75),
		retrieved("lower.pdf", 3, "lower", 0.4),
	}
	chat := &scriptedChat{results: []chatResult{{text: "cited answer"}}}

	answer := fastGenerator(chat, nil).Answer(context.Background(), "How is tax changed?", chunks)
	require.Len(t, answer.Sources, 3)

	assert.Equal(t, "best.pdf", answer.Sources[0].Document)
	assert.Equal(t, 0.877, answer.Sources[0].Similarity)
	assert.Equal(t, strings.Repeat("x", 200)+"...", answer.Sources[0].Excerpt)
	assert.Equal(t, "second.pdf", answer.Sources[1].Document)
	assert.Equal(t, "mid.pdf", answer.Sources[2].Document)
	assert.Equal(t, "middle text", answer.Sources[2].Excerpt)

	prompt := chat.lastUserPrompt()
	assert.Contains(t, prompt, "[Source: best.pdf, Page 1]\n"+long)
	assert.Contains(t, prompt, "[Source: second.pdf, Page 2]")
	assert.NotContains(t, prompt, "low.pdf")
	assert.Contains(t, prompt, "USER QUESTION:\nHow is tax changed?")

	msgs := chat.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
}

func TestGenerator_HTTPProviderCallBudget(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		want      string
		wantCalls int32
	}{
		{
			name:      "rate limited then bad gateway",
			statuses:  []int{http.StatusTooManyRequests, http.StatusBadGateway},
			want:      FallbackAnswer,
			wantCalls: 2,
		},
		{
			name:      "rate limited forever",
			statuses:  []int{http.StatusTooManyRequests},
			want:      FallbackAnswer,
			wantCalls: 2,
		},
		{
			name:      "bad gateway is not retried",
			statuses:  []int{http.StatusBadGateway},
			want:      FallbackAnswer,
			wantCalls: 1,
		},
		{
			name:      "rate limited then ok",
			statuses:  []int{http.StatusTooManyRequests, http.StatusOK},
			want:      "grounded answer",
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1))
				assert.Equal(t, "/chat/completions", r.URL.Path)
				// 脚本用完后重复最后一个状态码
				status := tt.statuses[len(tt.statuses)-1]
				if n <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"grounded answer"}}]}`))
				}
			}))
			defer server.Close()

			// 经注册表构建，配置的传输层重试不得作用于 chat
			chat, err := llm.NewChatProvider(openai.GroqProviderName, llm.Config{
				BaseURL:    server.URL,
				APIKey:     "test-key",
				MaxRetries: llm.Retries(3),
			})
			require.NoError(t, err)

			answer := fastGenerator(chat, nil).Answer(context.Background(), "q", nil)
			assert.Equal(t, tt.want, answer.Answer)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestNoContextPrompt_QuotesQuestionVerbatim(t *testing.T) {
	question := "What does \"new regime\" mean?\nAnd for seniors?"
	prompt := NoContextPrompt(question)

	assert.Contains(t, prompt, `The user asked: "What does "new regime" mean?`+"\nAnd for seniors?\"")
	assert.NotContains(t, prompt, `\"`)
	assert.NotContains(t, prompt, `\n`)
}
