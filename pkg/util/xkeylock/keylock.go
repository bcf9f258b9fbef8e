package xkeylock

import (
	"context"
	"io"
)

// Handle 表示一次成功的锁获取（包括可重入获取）。
// Unlock 是幂等的：第一次调用释放本次持有并返回 nil，后续调用返回 [ErrLockNotHeld]。
type Handle interface {
	// Unlock 释放本次持有。
	// 持有计数归零时才真正释放互斥，并移交给最早的等待者。
	Unlock() error

	// Key 返回锁的 key。
	// 即使在 Unlock 之后调用，Key 仍返回原始 key 值。
	Key() string

	// Context 返回携带 owner 的 context。
	// 嵌套调用使用该 context 获取同一 key 时为可重入获取。
	Context() context.Context
}

// Locker 提供基于 key 的进程内可重入公平互斥锁。
// 所有方法都是并发安全的。
type Locker interface {
	io.Closer

	// Acquire 阻塞式获取锁。
	// ctx 的 owner 已持有该 key 时立即返回，持有计数加一。
	// 支持 ctx 超时/取消，ctx 取消时返回 [context.Canceled] 或 [context.DeadlineExceeded]。
	// Locker 已关闭时返回 [ErrClosed]。key 不得为空字符串，否则返回 [ErrInvalidKey]。
	// ctx 不得为 nil，否则 panic。
	//
	// 当 Acquire 处于阻塞等待时，若 Close 与 ctx 取消同时发生，
	// 返回 [ErrClosed] 或 ctx.Err() 均有可能。调用方应同时处理这两类错误。
	Acquire(ctx context.Context, key string) (Handle, error)

	// TryAcquire 非阻塞获取锁。
	// 锁被其他 owner 持有或已有等待者排队时返回 (nil, [ErrLockOccupied])。
	TryAcquire(ctx context.Context, key string) (Handle, error)

	// Do 在 key 的锁内执行 fn，任何退出路径（包括 panic）都会释放锁。
	// fn 收到携带 owner 的 context，嵌套 Do 同一 key 不会自锁。
	// fn 的错误原样返回。
	Do(ctx context.Context, key string, fn func(ctx context.Context) error) error

	// Len 返回当前活跃的 key 数量（持有者或等待者非零的条目）。
	Len() int

	// Keys 返回当前活跃条目的 key 列表，仅用于调试。
	// 返回值是快照，不保证跨分片原子性。
	Keys() []string
}

// New 创建一个新的 Locker 实例。
// 配置无效时返回错误（如分片数不是 2 的幂）。
func New(opts ...Option) (Locker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return newKeyLockImpl(&o), nil
}
