// Package xctx 在 context 中传递追踪信息：trace_id、span_id、trace_flags、request_id，
// 以及持锁调用方的 lock_owner 编号。
//
// xlog 的 EnrichHandler 从这里读取字段注入日志，
// xmetrics 在开始 span 时回写 trace_id/span_id，使日志与链路对齐。
package xctx

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// ErrNilContext 表示传入的 context 为 nil。
var ErrNilContext = errors.New("xctx: nil context")

// 日志属性 Key，遵循 OpenTelemetry 语义约定（下划线分隔）
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyRequestID  = "request_id"
	KeyTraceFlags = "trace_flags"
	KeyLockOwner  = "lock_owner"
)

type contextKey string

const (
	keyTraceID    = contextKey("xctx:trace_id")
	keySpanID     = contextKey("xctx:span_id")
	keyRequestID  = contextKey("xctx:request_id")
	keyTraceFlags = contextKey("xctx:trace_flags")
	keyLockOwner  = contextKey("xctx:lock_owner")
)

func withValue(ctx context.Context, key contextKey, v string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, v), nil
}

func value(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithTraceID 将 trace ID 注入 context，ctx 为 nil 时返回 ErrNilContext。
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	return withValue(ctx, keyTraceID, traceID)
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串。
func TraceID(ctx context.Context) string { return value(ctx, keyTraceID) }

// WithSpanID 将 span ID 注入 context。
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	return withValue(ctx, keySpanID, spanID)
}

// SpanID 从 context 提取 span ID。
func SpanID(ctx context.Context) string { return value(ctx, keySpanID) }

// WithTraceFlags 注入 W3C trace-flags（2 位十六进制，如 "01"）。
func WithTraceFlags(ctx context.Context, flags string) (context.Context, error) {
	return withValue(ctx, keyTraceFlags, flags)
}

// TraceFlags 从 context 提取 trace flags。
func TraceFlags(ctx context.Context) string { return value(ctx, keyTraceFlags) }

// WithRequestID 将 request ID 注入 context。
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	return withValue(ctx, keyRequestID, requestID)
}

// RequestID 从 context 提取 request ID。
func RequestID(ctx context.Context) string { return value(ctx, keyRequestID) }

// WithLockOwner 记录当前持锁调用方的编号，由 xkeylock 在获得锁时写入。
func WithLockOwner(ctx context.Context, owner uint64) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyLockOwner, owner), nil
}

// LockOwner 从 context 提取持锁调用方编号，不存在返回 0。
func LockOwner(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	v, _ := ctx.Value(keyLockOwner).(uint64)
	return v
}

// EnsureRequestID 确保 context 携带 request ID，缺失时生成 UUIDv4。
func EnsureRequestID(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if RequestID(ctx) != "" {
		return ctx, nil
	}
	return WithRequestID(ctx, uuid.NewString())
}

// AppendTraceAttrs 将非空的 trace_id、span_id、request_id、lock_owner 追加到 attrs。
// 热路径使用，调用方可传入栈上数组避免分配。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SpanID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySpanID, v))
	}
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyRequestID, v))
	}
	if v := LockOwner(ctx); v != 0 {
		attrs = append(attrs, slog.String(KeyLockOwner, strconv.FormatUint(v, 10)))
	}
	return attrs
}
