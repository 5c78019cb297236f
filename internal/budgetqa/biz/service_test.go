package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/internal/budgetqa/metrics"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/llm"
)

func seededStore(t *testing.T) store.VectorStore {
	t.Helper()
	s, err := store.NewMemoryStore(3, "")
	require.NoError(t, err)

	emb := &keywordEmbedder{}
	chunk := func(id, doc, text string, md model.ChunkMetadata) model.EmbeddedChunk {
		return model.EmbeddedChunk{
			TaggedChunk: model.TaggedChunk{
				TextChunk: model.TextChunk{ChunkID: id, DocumentName: doc, PageNumber: 2, Text: text},
				Metadata:  md,
			},
			Embedding:          emb.vector(text),
			EmbeddingDimension: 3,
		}
	}
	require.NoError(t, s.Upsert(context.Background(), []model.EmbeddedChunk{
		chunk("speech.pdf_p2_c0", "speech.pdf", "Income tax slabs revised. Tax rebate raised for salaried tax payers.",
			model.ChunkMetadata{UserTypes: []string{"salaried"}, Topics: []model.Topic{{Main: "Taxation", Sub: "Income Tax"}}}),
		chunk("speech.pdf_p2_c1", "speech.pdf", "Farm credit and farm insurance expanded for farmers.",
			model.ChunkMetadata{UserTypes: []string{"farmer"}, Topics: []model.Topic{{Main: "Economic Development", Sub: "Agriculture"}}}),
	}))
	return s
}

func newTestService(t *testing.T, chat llm.ChatProvider, opts ...ServiceOption) (*Service, *keywordEmbedder, *metrics.Metrics) {
	t.Helper()
	emb := &keywordEmbedder{}
	m := metrics.New()
	svc := NewService(DefaultServiceConfig(), newTestEmbedder(emb), seededStore(t), fastGenerator(chat, m), m, opts...)
	return svc, emb, m
}

func TestService_Chat(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{text: "The rebate was raised."}}}
	svc, _, _ := newTestService(t, chat)

	resp, err := svc.Chat(context.Background(), model.ChatRequest{Message: "What changed in income tax?"})
	require.NoError(t, err)
	assert.Equal(t, "The rebate was raised.", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "speech.pdf", resp.Sources[0].Document)
	assert.Equal(t, 2, resp.Sources[0].Page)
	_, err = uuid.Parse(resp.ConversationID)
	assert.NoError(t, err)

	resp, err = svc.Chat(context.Background(), model.ChatRequest{Message: "tax?", ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", resp.ConversationID)
}

func TestService_ChatWithFilter(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{text: "ok"}}}
	svc, _, _ := newTestService(t, chat)

	resp, err := svc.Chat(context.Background(), model.ChatRequest{
		Message:      "tax and farm support",
		UserMetadata: map[string]any{"user_types": []any{"farmer"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Contains(t, chat.lastUserPrompt(), "Farm credit")
	assert.NotContains(t, chat.lastUserPrompt(), "rebate")
}

func TestService_ChatUsesCache(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{text: "cached answer"}}}
	cache := NewQueryCache(newMemoryCache(), QueryCacheConfig{})
	svc, _, m := newTestService(t, chat, WithQueryCache(cache))

	for _, q := range []string{"Income tax changes?", "  income   TAX changes?"} {
		resp, err := svc.Chat(context.Background(), model.ChatRequest{Message: q})
		require.NoError(t, err)
		assert.Equal(t, "cached answer", resp.Answer)
	}
	assert.Equal(t, 1, chat.calls())
	assert.Contains(t, m.Export("t"), "t_cache_hits_total 1\n")
}

func TestService_FallbackIsNotCached(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{err: errors.New("down")}, {text: "recovered"}}}
	cache := NewQueryCache(newMemoryCache(), QueryCacheConfig{})
	svc, _, _ := newTestService(t, chat, WithQueryCache(cache))

	resp, err := svc.Chat(context.Background(), model.ChatRequest{Message: "tax?"})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, resp.Answer)

	resp, err = svc.Chat(context.Background(), model.ChatRequest{Message: "tax?"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Answer)
}

func TestService_ChatDimensionMismatch(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{text: "x"}}}
	m := metrics.New()
	svc := NewService(DefaultServiceConfig(), newTestEmbedder(&keywordEmbedder{dim: 8}), seededStore(t), fastGenerator(chat, m), m)

	_, err := svc.Chat(context.Background(), model.ChatRequest{Message: "tax"})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	assert.Zero(t, chat.calls())
}

func TestService_ChatEmbeddingFailureDegrades(t *testing.T) {
	chat := &scriptedChat{results: []chatResult{{text: "no context answer"}}}
	m := metrics.New()
	svc := NewService(DefaultServiceConfig(), newTestEmbedder(&keywordEmbedder{err: errors.New("timeout")}), seededStore(t), fastGenerator(chat, m), m)

	resp, err := svc.Chat(context.Background(), model.ChatRequest{Message: "tax"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, NoContextPrompt("tax"), chat.lastUserPrompt())
}

func TestService_Search(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedChat{results: []chatResult{{text: "unused"}}})

	resp, err := svc.Search(context.Background(), "tax", 5, nil)
	require.NoError(t, err)
	require.Equal(t, resp.Total, len(resp.Results))
	require.NotZero(t, resp.Total)
	assert.Contains(t, resp.Results[0].Text, "Income tax")
	assert.Equal(t, []any{"salaried"}, resp.Results[0].Metadata["user_types"])

	strict := 0.999
	resp, err = svc.Search(context.Background(), "tax", 5, &strict)
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
	assert.NotNil(t, resp.Results)
}

func TestService_Health(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedChat{results: []chatResult{{text: "x"}}})
	h := svc.Health(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, "ok (2 chunks)", h.Components["database"])
	assert.Equal(t, "loaded", h.Components["embedding_model"])
	assert.Equal(t, "ok", h.Components["llm"])
	assert.Equal(t, "1.0.0", h.Version)

	m := metrics.New()
	broken := NewService(DefaultServiceConfig(),
		NewEmbedder(func() (llm.EmbeddingProvider, error) { return nil, llm.ErrMissingAPIKey }, DefaultEmbedderConfig(), nil),
		seededStore(t), fastGenerator(&scriptedChat{}, m), m,
		WithLLMState(func() string { return "open" }),
	)
	h = broken.Health(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Contains(t, h.Components["embedding_model"], "error: ")
	assert.Equal(t, "error: circuit breaker open", h.Components["llm"])
}
