package xrun

import (
	"os"

	"github.com/omeyang/xsync/pkg/observability/xlog"
)

// Option 配置 Group。
type Option func(*options)

type options struct {
	logger          xlog.Logger
	name            string
	limit           int
	signals         []os.Signal
	noSignalHandler bool
}

func defaultOptions() *options {
	return &options{
		logger: xlog.Discard(),
		name:   "xrun",
	}
}

// WithLogger 设置生命周期日志，nil 忽略。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 Group 名称，用于日志。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLimit 限制同时运行的任务数，n <= 0 表示不限制。
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

// WithSignals 设置 Run 监听的信号，空列表使用 DefaultSignals。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *options) {
		o.signals = copied
	}
}

// WithoutSignalHandler 禁用 Run 的信号监听。
func WithoutSignalHandler() Option {
	return func(o *options) {
		o.noSignalHandler = true
	}
}
