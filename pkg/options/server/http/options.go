// Package http 定义 HTTP 监听与超时配置。
package http

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/budgetqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options HTTP 服务配置，flag 前缀为 http.。
type Options struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout     time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
	// MaxHeaderBytes 为 0 时使用 net/http 默认值。
	MaxHeaderBytes int `json:"max-header-bytes" mapstructure:"max-header-bytes"`
}

// Option mutates Options, mostly for tests and embedding callers.
type Option func(*Options)

// NewOptions 返回默认配置。WriteTimeout 需覆盖一次限流重试加模型调用的耗时。
func NewOptions() *Options {
	return &Options{
		Addr:            ":8000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Address the HTTP API listens on.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Maximum duration for reading a whole request.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Maximum duration for writing a response.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Keep-alive idle timeout.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
	fs.IntVar(&o.MaxHeaderBytes, p+"max-header-bytes", o.MaxHeaderBytes, "Maximum request header size, 0 uses the net/http default.")
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	checks := []struct {
		bad bool
		msg string
	}{
		{o.Addr == "", "http.addr is required"},
		{o.ReadTimeout <= 0, "http.read-timeout must be greater than 0"},
		{o.WriteTimeout <= 0, "http.write-timeout must be greater than 0"},
		{o.ShutdownTimeout < 0, "http.shutdown-timeout must not be negative"},
		{o.MaxHeaderBytes < 0, "http.max-header-bytes must not be negative"},
	}
	var errs []error
	for _, c := range checks {
		if c.bad {
			errs = append(errs, fmt.Errorf("%s", c.msg))
		}
	}
	return errs
}

// Complete 将未设置的关闭超时恢复为默认值。
func (o *Options) Complete() error {
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = NewOptions().ShutdownTimeout
	}
	return nil
}

func WithAddr(addr string) Option {
	return func(o *Options) { o.Addr = addr }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = d }
}

func (o *Options) ApplyOptions(opts ...Option) {
	for _, apply := range opts {
		apply(o)
	}
}
