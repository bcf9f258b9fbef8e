// Package xmetrics 提供统一的观测接口（metrics + tracing）。
//
// 组件代码只依赖 Observer/Span/Attr 三个最小接口，
// 默认实现基于 OpenTelemetry，未配置时使用 NoopObserver。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xkeylock",
//		Operation: "acquire",
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// 统一指标：
//   - xsync.operation.total
//   - xsync.operation.duration
//
// 统一属性：component / operation / status。
package xmetrics
