// Package logger provides structured logging utilities with context propagation.
package logger

import (
	"context"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
)

type contextKey int

const loggerFieldsKey contextKey = iota

const (
	// FieldRequestID 请求 ID 字段名。
	FieldRequestID = "request_id"
	// FieldDocument 文档名字段名。
	FieldDocument = "document"
)

// fields 保持插入顺序，保证日志输出稳定。
type fields struct {
	keys   []string
	values map[string]any
}

func (f *fields) clone() *fields {
	n := &fields{values: make(map[string]any, len(f.values)+1)}
	n.keys = append(n.keys, f.keys...)
	for k, v := range f.values {
		n.values[k] = v
	}
	return n
}

func fromContext(ctx context.Context) *fields {
	if f, ok := ctx.Value(loggerFieldsKey).(*fields); ok {
		return f
	}
	return &fields{values: map[string]any{}}
}

// WithField 返回携带额外日志字段的 context，同名字段后者覆盖前者。
func WithField(ctx context.Context, key string, value any) context.Context {
	f := fromContext(ctx).clone()
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
	return context.WithValue(ctx, loggerFieldsKey, f)
}

// WithRequestID adds request_id to the context logger fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return WithField(ctx, FieldRequestID, requestID)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	v, _ := fromContext(ctx).values[FieldRequestID].(string)
	return v
}

// Fields returns the context fields as a key-value slice.
func Fields(ctx context.Context) []any {
	f := fromContext(ctx)
	out := make([]any, 0, len(f.keys)*2)
	for _, k := range f.keys {
		out = append(out, k, f.values[k])
	}
	return out
}

// GetLogger returns the global logger enriched with ctx fields.
func GetLogger(ctx context.Context) core.Logger {
	base := logger.Global()
	if kv := Fields(ctx); len(kv) > 0 {
		return base.With(kv...)
	}
	return base
}
