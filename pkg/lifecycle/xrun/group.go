// Package xrun 基于 errgroup 管理一组并发任务的运行与协调退出。
//
// 任一任务返回错误、收到系统信号或调用 Cancel 时，其余任务的 ctx 被取消；
// Wait 返回第一个有意义的错误，普通取消返回 nil。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithName("stress")},
//		workerA, workerB,
//	)
//	if errors.Is(err, xrun.ErrSignal) { ... }
package xrun

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xsync/pkg/observability/xlog"
)

// ErrNilFunc 表示传入的任务函数为 nil。
var ErrNilFunc = errors.New("xrun: nil func")

// Group 管理多个任务的并发运行。Go/GoWithName/Cancel 并发安全，Wait 只应调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *options
}

// NewGroup 创建 Group，返回的 ctx 在任一任务出错时取消。nil ctx 视为 Background。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	if o.limit > 0 {
		eg.SetLimit(o.limit)
	}
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动任务。设置了并发上限时，超出上限会阻塞直到有任务结束。
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		return fn(g.ctx)
	})
}

// GoWithName 与 Go 相同，并记录任务的启动与退出。
func (g *Group) GoWithName(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		log := g.opts.logger.With(slog.String("group", g.opts.name), slog.String("task", name))
		log.Debug(g.ctx, "xrun: task starting")
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn(g.ctx, "xrun: task failed", xlog.Err(err))
		} else {
			log.Debug(g.ctx, "xrun: task stopped")
		}
		return err
	})
}

// Wait 等待所有任务结束。
//
// context.Canceled 被过滤：Group 被主动取消时返回显式 cause（如 *SignalError），
// 没有 cause 时返回 nil。任务内部产生的 Canceled 原样返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil && g.causeCtx.Err() == nil {
		return err
	}
	if g.causeCtx.Err() != nil {
		if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
	}
	return nil
}

// Cancel 取消所有任务，cause 由 Wait 返回。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Context 返回 Group 的 context。
func (g *Group) Context() context.Context {
	return g.ctx
}

// Run 创建 Group，注册信号监听（可用 WithoutSignalHandler 关闭），运行 tasks 并等待。
// 收到信号时返回 *SignalError。
func Run(ctx context.Context, opts []Option, tasks ...func(ctx context.Context) error) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignalHandler {
		g.Go(g.watchSignals)
	}
	for _, task := range tasks {
		g.Go(task)
	}
	return g.Wait()
}
