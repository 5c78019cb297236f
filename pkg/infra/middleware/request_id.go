// Package middleware provides the gin middleware used by the HTTP server.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/budgetqa/pkg/id"
	mwlogger "github.com/kart-io/budgetqa/pkg/infra/logger"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
	"github.com/kart-io/budgetqa/pkg/utils/response"
)

// maxRequestIDLength 客户端传入的请求 ID 超过该长度时重新生成。
const maxRequestIDLength = 128

// RequestID returns a middleware that assigns every request an id.
// 客户端传入的 ID 会被复用，否则生成 ULID；ID 写入响应头、gin 上下文与请求 context。
func RequestID(opts mwopts.RequestIDOptions) gin.HandlerFunc {
	header := opts.Header
	if header == "" {
		header = "X-Request-ID"
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(header)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = id.NewULID()
		}

		c.Header(header, requestID)
		c.Set(response.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(mwlogger.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}
