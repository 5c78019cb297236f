package middleware

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/pkg/errors"
	mwopts "github.com/kart-io/budgetqa/pkg/options/middleware"
	"github.com/kart-io/budgetqa/pkg/utils/response"
)

// PanicHandler 定义 panic 处理器类型。
type PanicHandler func(c *gin.Context, err any, stack []byte)

// Recovery returns a middleware that turns panics into ErrPanic envelopes.
// onPanic 可为 nil。
func Recovery(opts mwopts.RecoveryOptions, onPanic PanicHandler) gin.HandlerFunc {
	withStack := opts.EnableStackTrace
	if withStack && isProduction() {
		logger.Warn("Stack trace is enabled but running in production environment, it will only be logged")
		withStack = false
	}

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			logger.Errorw("panic recovered",
				"panic", r,
				"stack_trace", string(stack),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", c.GetString(response.RequestIDKey),
			)
			if onPanic != nil {
				onPanic(c, r, stack)
			}

			msg := fmt.Sprintf("panic: %v", r)
			if withStack {
				msg += "\n" + string(stack)
			}
			response.AbortFail(c, errors.ErrPanic.WithMessage(msg))
		}()
		c.Next()
	}
}

// isProduction checks APP_ENV, then GO_ENV.
func isProduction() bool {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	switch strings.ToLower(env) {
	case "production", "prod":
		return true
	default:
		return false
	}
}
