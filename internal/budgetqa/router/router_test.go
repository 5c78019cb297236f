package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/budgetqa/internal/budgetqa/handler"
	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/errors"
	"github.com/kart-io/budgetqa/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	chatReq   model.ChatRequest
	query     string
	limit     int
	threshold *float64
	err       error
}

func (f *fakeService) Chat(_ context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	f.chatReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.ChatResponse{
		Answer:         "Section 80C allows deductions up to ₹1.5 lakh.",
		Sources:        []model.Source{{Document: "budget_speech.pdf", Page: 12, Similarity: 0.82, Excerpt: "80C"}},
		ConversationID: "conv-1",
	}, nil
}

func (f *fakeService) Search(_ context.Context, q string, limit int, threshold *float64) (*model.SearchResponse, error) {
	f.query, f.limit, f.threshold = q, limit, threshold
	if f.err != nil {
		return nil, f.err
	}
	return &model.SearchResponse{Results: []model.SearchHit{{Text: "t", Document: "d.pdf", Page: 1, Similarity: 0.5}}, Total: 1}, nil
}

func (f *fakeService) Health(context.Context) *model.HealthStatus {
	return &model.HealthStatus{Status: "degraded", Components: map[string]string{"llm": "error: circuit breaker open"}, Version: "1.0.0"}
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func setup(svc *fakeService) *gin.Engine {
	engine := gin.New()
	Register(engine, handler.New(svc, func() string { return "budgetqa_queries_total 3\n" }))
	return engine
}

func call(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestChat(t *testing.T) {
	svc := &fakeService{}
	r := setup(svc)

	w, env := call(t, r, http.MethodPost, "/api/v1/chat",
		`{"message":"What is 80C?","user_metadata":{"user_types":["salaried"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 12, resp.Sources[0].Page)
	assert.Equal(t, "What is 80C?", svc.chatReq.Message)
	assert.Equal(t, []any{"salaried"}, svc.chatReq.UserMetadata["user_types"])
}

func TestChat_Validation(t *testing.T) {
	r := setup(&fakeService{})
	tests := []struct {
		name string
		body string
	}{
		{"blank message", `{"message":"   "}`},
		{"missing message", `{}`},
		{"too long", `{"message":"` + strings.Repeat("a", 1001) + `"}`},
		{"malformed json", `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := call(t, r, http.MethodPost, "/api/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, errors.ErrInvalidChatInput.Code, env.Code)
		})
	}
}

func TestChat_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"dimension mismatch", store.ErrDimensionMismatch, http.StatusInternalServerError, errors.ErrDimensionMismatch.Code},
		{"store unavailable", store.ErrUnavailable, http.StatusServiceUnavailable, errors.ErrVectorStore.Code},
		{"errno passes through", errors.ErrLLMRateLimited, http.StatusTooManyRequests, errors.ErrLLMRateLimited.Code},
		{"other", assert.AnError, http.StatusInternalServerError, errors.ErrRetrievalFailed.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setup(&fakeService{err: tt.err})
			w, env := call(t, r, http.MethodPost, "/api/v1/chat", `{"message":"q"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestSearch(t *testing.T) {
	svc := &fakeService{}
	r := setup(svc)

	w, env := call(t, r, http.MethodGet, "/api/v1/search?q=farmers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "farmers", svc.query)
	assert.Equal(t, 5, svc.limit)
	assert.Nil(t, svc.threshold)

	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.Total)

	_, _ = call(t, r, http.MethodGet, "/api/v1/search?q=farmers&limit=3&threshold=0.5", "")
	assert.Equal(t, 3, svc.limit)
	require.NotNil(t, svc.threshold)
	assert.InDelta(t, 0.5, *svc.threshold, 1e-9)
}

func TestSearch_Validation(t *testing.T) {
	r := setup(&fakeService{})
	for _, q := range []string{
		"/api/v1/search",
		"/api/v1/search?q=x&limit=0",
		"/api/v1/search?q=x&limit=21",
		"/api/v1/search?q=x&threshold=1.5",
		"/api/v1/search?q=x&limit=abc",
	} {
		w, env := call(t, r, http.MethodGet, q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, errors.ErrInvalidParam.Code, env.Code, q)
	}
}

func TestHealth(t *testing.T) {
	w, env := call(t, setup(&fakeService{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var hs model.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &hs))
	assert.Equal(t, "degraded", hs.Status)
	assert.Equal(t, "1.0.0", hs.Version)
}

func TestMetrics(t *testing.T) {
	w, _ := call(t, setup(&fakeService{}), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "budgetqa_queries_total 3\n", w.Body.String())
}

func TestCalculateTax(t *testing.T) {
	r := setup(&fakeService{})

	w, env := call(t, r, http.MethodPost, "/api/v1/calculate-tax", `{"income":1000000,"regime":"new"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Regime         string  `json:"regime"`
		TotalTax       float64 `json:"total_tax"`
		Cess           float64 `json:"cess"`
		TotalLiability float64 `json:"total_liability"`
		EffectiveRate  float64 `json:"effective_rate"`
		TakeHome       float64 `json:"take_home"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "new", res.Regime)
	assert.InDelta(t, 60000, res.TotalTax, 1e-6)
	assert.InDelta(t, 2400, res.Cess, 1e-6)
	assert.InDelta(t, 62400, res.TotalLiability, 1e-6)
	assert.InDelta(t, 6.24, res.EffectiveRate, 1e-9)
	assert.InDelta(t, 937600, res.TakeHome, 1e-6)

	w, env = call(t, r, http.MethodPost, "/api/v1/calculate-tax", `{"income":1000000,"regime":"OLD","deductions":150000}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "old", res.Regime)
	assert.InDelta(t, 85800, res.TotalLiability, 1e-6)
}

func TestCalculateTax_Validation(t *testing.T) {
	r := setup(&fakeService{})
	for _, body := range []string{
		`{"income":-1,"regime":"new"}`,
		`{"regime":"new"}`,
		`{"income":100,"regime":"flat"}`,
		`{"income":100,"deductions":-5}`,
	} {
		w, env := call(t, r, http.MethodPost, "/api/v1/calculate-tax", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, errors.ErrInvalidTaxInput.Code, env.Code, body)
	}
}

func TestCompareRegimes(t *testing.T) {
	w, env := call(t, setup(&fakeService{}), http.MethodPost, "/api/v1/compare-regimes", `{"income":1000000,"deductions":150000}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Savings      float64 `json:"savings"`
		BetterRegime string  `json:"better_regime"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "new", res.BetterRegime)
	assert.InDelta(t, 23400, res.Savings, 1e-6)
}

func TestStaticData(t *testing.T) {
	r := setup(&fakeService{})

	w, env := call(t, r, http.MethodGet, "/api/v1/tax-slabs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var slabs map[string]struct {
		Regime string `json:"regime"`
		Slabs  []any  `json:"slabs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &slabs))
	assert.Len(t, slabs["new_regime"].Slabs, 6)
	assert.Len(t, slabs["old_regime"].Slabs, 4)

	w, env = call(t, r, http.MethodGet, "/api/v1/allocations", "")
	require.Equal(t, http.StatusOK, w.Code)
	var alloc struct {
		Allocations []any `json:"allocations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &alloc))
	assert.Len(t, alloc.Allocations, 8)
}
