package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	apierrors "github.com/kart-io/budgetqa/pkg/errors"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
	"github.com/kart-io/budgetqa/pkg/utils/response"
)

// Timeout returns a middleware that bounds request processing time.
// 处理器在同一 goroutine 中运行，通过请求 context 的截止时间感知超时；
// 超时且尚未写出响应时返回 ErrRequestTimeout。
func Timeout(opts mwopts.TimeoutOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if opts.Timeout <= 0 {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.AbortFail(c, apierrors.ErrRequestTimeout)
		}
	}
}
