// Package response provides the unified API response envelope for gin handlers.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/budgetqa/pkg/errors"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data any `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response timestamp (Unix milliseconds)
	Timestamp int64 `json:"timestamp"`
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// Err creates an error response from an Errno.
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:    e.Code,
		Message: e.Message(lang),
	}
}

// OK writes a 200 response carrying data.
func OK(c *gin.Context, data any) {
	write(c, http.StatusOK, Success(data))
}

// Fail maps err onto its Errno and writes the matching HTTP status.
func Fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	lang := c.GetHeader("Accept-Language")
	if len(lang) > 5 {
		lang = lang[:5]
	}
	write(c, e.HTTPStatus(), Err(e, lang))
}

// AbortFail is Fail followed by c.Abort.
func AbortFail(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}

func write(c *gin.Context, status int, r *Response) {
	r.RequestID = c.GetString(RequestIDKey)
	r.Timestamp = time.Now().UnixMilli()
	c.JSON(status, r)
}
