// Package handler provides HTTP handlers for the budget assistant.
package handler

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/store"
	"github.com/kart-io/budgetqa/internal/model"
	"github.com/kart-io/budgetqa/pkg/errors"
	"github.com/kart-io/budgetqa/pkg/utils/response"
	"github.com/kart-io/budgetqa/pkg/validator"
)

// QAService 问答服务。
type QAService interface {
	Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	Search(ctx context.Context, query string, limit int, threshold *float64) (*model.SearchResponse, error)
	Health(ctx context.Context) *model.HealthStatus
}

// MetricsExporter 返回 Prometheus 文本格式的指标。
type MetricsExporter func() string

// Handler handles budget assistant HTTP requests.
type Handler struct {
	service QAService
	metrics MetricsExporter
}

// New creates a new Handler.
func New(service QAService, metrics MetricsExporter) *Handler {
	return &Handler{service: service, metrics: metrics}
}

// Chat answers a question from the budget documents.
func (h *Handler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(c, err, errors.ErrInvalidChatInput))
		return
	}

	resp, err := h.service.Chat(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, serviceError(err))
		return
	}
	response.OK(c, resp)
}

// Search returns the raw similarity hits for a query.
func (h *Handler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Fail(c, bindError(c, err, errors.ErrInvalidParam))
		return
	}

	resp, err := h.service.Search(c.Request.Context(), req.Query, req.Limit, req.Threshold)
	if err != nil {
		response.Fail(c, serviceError(err))
		return
	}
	response.OK(c, resp)
}

// Health reports component status. degraded 仍返回 200，由 status 字段区分。
func (h *Handler) Health(c *gin.Context) {
	response.OK(c, h.service.Health(c.Request.Context()))
}

// Metrics writes the Prometheus text exposition.
func (h *Handler) Metrics(c *gin.Context) {
	body := ""
	if h.metrics != nil {
		body = h.metrics()
	}
	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(body))
}

// bindError 把绑定/校验错误转换为 Errno，校验信息按 Accept-Language 翻译。
func bindError(c *gin.Context, err error, code *errors.Errno) error {
	if stderrors.Is(err, io.EOF) {
		return code.WithMessage("request body is required")
	}
	if verrs := validator.Global().Translate(err, c.GetHeader("Accept-Language")); verrs != nil {
		return code.WithMessage(verrs.Error()).WithCause(verrs)
	}
	return code.WithMessage(err.Error()).WithCause(err)
}

// serviceError 将业务层错误映射为 Errno。
func serviceError(err error) error {
	var errno *errors.Errno
	switch {
	case stderrors.As(err, &errno):
		return err
	case stderrors.Is(err, store.ErrDimensionMismatch):
		logger.Errorw("Embedding dimension mismatch", "error", err.Error())
		return errors.ErrDimensionMismatch.WithCause(err)
	case stderrors.Is(err, store.ErrUnavailable):
		return errors.ErrVectorStore.WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrRequestTimeout.WithCause(err)
	default:
		logger.Errorw("Request failed", "error", err.Error())
		return errors.ErrRetrievalFailed.WithCause(err)
	}
}
