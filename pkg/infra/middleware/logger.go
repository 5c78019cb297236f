package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	mwlogger "github.com/kart-io/budgetqa/pkg/infra/logger"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
)

// Logger returns a middleware that writes one structured access log per request.
func Logger(opts mwopts.LoggerOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		}
		log := mwlogger.GetLogger(c.Request.Context())
		if len(c.Errors) > 0 {
			log.Warnw("HTTP Request", append(fields, "errors", c.Errors.String())...)
			return
		}
		log.Infow("HTTP Request", fields...)
	}
}
