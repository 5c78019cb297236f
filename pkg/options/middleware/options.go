// Package middleware provides HTTP middleware configuration options.
package middleware

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// RecoveryOptions defines recovery middleware options.
type RecoveryOptions struct {
	// EnableStackTrace 在错误响应中返回堆栈，生产环境下始终关闭。
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// RequestIDOptions defines request ID middleware options.
type RequestIDOptions struct {
	Header string `json:"header" mapstructure:"header"`
}

// LoggerOptions defines logger middleware options.
type LoggerOptions struct {
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// CORSOptions defines CORS middleware options.
type CORSOptions struct {
	Enabled          bool     `json:"enabled" mapstructure:"enabled"`
	AllowOrigins     []string `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string `json:"allow-headers" mapstructure:"allow-headers"`
	AllowCredentials bool     `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age" mapstructure:"max-age"`
}

// TimeoutOptions defines timeout middleware options.
type TimeoutOptions struct {
	// Timeout 单个请求的处理时限，0 表示不限制。
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	SkipPaths []string      `json:"skip-paths" mapstructure:"skip-paths"`
}

// Options groups the options of every HTTP middleware.
type Options struct {
	Recovery  *RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`
	Logger    *LoggerOptions    `json:"logger" mapstructure:"logger"`
	CORS      *CORSOptions      `json:"cors" mapstructure:"cors"`
	Timeout   *TimeoutOptions   `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates default middleware options.
func NewOptions() *Options {
	return &Options{
		Recovery:  &RecoveryOptions{},
		RequestID: &RequestIDOptions{Header: "X-Request-ID"},
		Logger:    &LoggerOptions{SkipPaths: []string{"/health", "/metrics"}},
		CORS: &CORSOptions{
			Enabled:      true,
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			MaxAge:       86400,
		},
		Timeout: &TimeoutOptions{Timeout: 60 * time.Second, SkipPaths: []string{"/health", "/metrics"}},
	}
}

// AddFlags adds flags for middleware options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware."
	fs.BoolVar(&o.Recovery.EnableStackTrace, p+"recovery.enable-stack-trace", o.Recovery.EnableStackTrace, "Return stack traces in panic responses (ignored in production).")
	fs.StringVar(&o.RequestID.Header, p+"request-id.header", o.RequestID.Header, "Request ID header name.")
	fs.StringSliceVar(&o.Logger.SkipPaths, p+"logger.skip-paths", o.Logger.SkipPaths, "Paths excluded from access logs.")
	fs.BoolVar(&o.CORS.Enabled, p+"cors.enabled", o.CORS.Enabled, "Enable CORS.")
	fs.StringSliceVar(&o.CORS.AllowOrigins, p+"cors.allow-origins", o.CORS.AllowOrigins, "CORS allowed origins.")
	fs.StringSliceVar(&o.CORS.AllowMethods, p+"cors.allow-methods", o.CORS.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.CORS.AllowHeaders, p+"cors.allow-headers", o.CORS.AllowHeaders, "CORS allowed headers.")
	fs.BoolVar(&o.CORS.AllowCredentials, p+"cors.allow-credentials", o.CORS.AllowCredentials, "CORS allow credentials.")
	fs.IntVar(&o.CORS.MaxAge, p+"cors.max-age", o.CORS.MaxAge, "CORS preflight max age in seconds.")
	fs.DurationVar(&o.Timeout.Timeout, p+"timeout.timeout", o.Timeout.Timeout, "Request processing timeout, 0 disables it.")
	fs.StringSliceVar(&o.Timeout.SkipPaths, p+"timeout.skip-paths", o.Timeout.SkipPaths, "Paths without a processing timeout.")
}

// Validate validates the middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.RequestID == nil || o.RequestID.Header == "" {
		errs = append(errs, errors.New("middleware.request-id.header is required"))
	}
	if o.CORS != nil && o.CORS.Enabled && len(o.CORS.AllowOrigins) == 0 {
		errs = append(errs, errors.New("middleware.cors.allow-origins must be explicitly configured"))
	}
	if o.Timeout != nil && o.Timeout.Timeout < 0 {
		errs = append(errs, errors.New("middleware.timeout.timeout cannot be negative"))
	}
	return errs
}

// Complete fills missing sections with defaults.
func (o *Options) Complete() error {
	def := NewOptions()
	if o.Recovery == nil {
		o.Recovery = def.Recovery
	}
	if o.RequestID == nil {
		o.RequestID = def.RequestID
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.CORS == nil {
		o.CORS = def.CORS
	}
	if o.Timeout == nil {
		o.Timeout = def.Timeout
	}
	return nil
}
