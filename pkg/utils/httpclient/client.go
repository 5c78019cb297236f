// Package httpclient 是调用模型服务 JSON 接口的 HTTP 客户端。
// 传输错误与 5xx 按线性退避重试，4xx（包括 429）直接返回给调用方判断。
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/budgetqa/pkg/utils/json"
)

// maxErrorBody 错误响应体最多保留的字节数。
const maxErrorBody = 4 << 10

// StatusError 服务端返回 4xx/5xx。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == code
	}
	return false
}

type Client struct {
	hc         *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient 创建客户端，maxRetries 为首次请求之外的重试次数。
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		hc:         &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// PostJSON 发送 JSON 请求体并把响应解码到 out，out 为 nil 时丢弃响应体。
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, url, headers, payload, out)
}

// GetJSON 发送 GET 请求并解码 JSON 响应。
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, url, nil, nil, out)
}

func (c *Client) roundTrip(ctx context.Context, method, url string, headers map[string]string, payload []byte, out any) error {
	resp, err := c.send(ctx, method, url, headers, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send 执行请求，必要时重试。每次尝试都重新构造请求以便重放请求体。
func (c *Client) send(ctx context.Context, method, url string, headers map[string]string, payload []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, method, url, headers, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.hc.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = statusError(resp)
			_ = resp.Body.Close()
		default:
			return resp, nil
		}

		if attempt >= c.maxRetries {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, headers map[string]string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	// W3C trace context / baggage，无活跃 span 时为空操作
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
