package xkeylock

import (
	"context"
	"sync/atomic"

	"github.com/omeyang/xsync/pkg/context/xctx"
)

// owner 标识一个逻辑调用方，按指针比较。
//
// 每次新获得锁都会派生一个子 owner 写入 Handle 的 context，
// parent 指向获取时的 owner。explicit 表示由 WithOwner 创建。
type owner struct {
	id       uint64
	parent   *owner
	explicit bool
}

type ownerKey struct{}

var ownerSeq atomic.Uint64

func newOwner() *owner {
	return &owner{id: ownerSeq.Add(1)}
}

func (o *owner) child() *owner {
	return &owner{id: ownerSeq.Add(1), parent: o}
}

// within 报告 o 是否为 anc 本身或其后代。
func (o *owner) within(anc *owner) bool {
	for p := o; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

// WithOwner 返回携带新 owner 的 context。
//
// 使用同一 context（或其派生 context）的调用视为同一逻辑调用方，
// 对同一 key 的重复获取是可重入的。
// 派生自该 context 的 goroutine 也共享 owner，调用方需自行保证它们不会并发进入临界区。
//
// Handle.Context() 不受此限制：它携带本次持有专属的子 owner，
// 只能重入该 Handle（及其嵌套获取）已持有的 key；
// 从它派生的多个 goroutine 获取其他 key 时正常排队互斥。
func WithOwner(ctx context.Context) context.Context {
	if ctx == nil {
		panic("xkeylock: nil Context")
	}
	o := newOwner()
	o.explicit = true
	return context.WithValue(ctx, ownerKey{}, o)
}

// HasOwner 报告 ctx 是否携带 owner。
func HasOwner(ctx context.Context) bool {
	return ownerFrom(ctx) != nil
}

// OwnerID 返回 ctx 中 owner 的编号，没有 owner 时返回 0。
// 编号进程内单调递增，仅用于日志和排障。
func OwnerID(ctx context.Context) uint64 {
	if o := ownerFrom(ctx); o != nil {
		return o.id
	}
	return 0
}

func ownerFrom(ctx context.Context) *owner {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(ownerKey{}).(*owner)
	return o
}

// ensureOwner 返回带 owner 的 ctx；ctx 已有 owner 时原样返回。
func ensureOwner(ctx context.Context) (context.Context, *owner) {
	if o := ownerFrom(ctx); o != nil {
		return ctx, o
	}
	o := newOwner()
	return context.WithValue(ctx, ownerKey{}, o), o
}

// heldContext 返回携带持有者 o 的 context，并同步写入 xctx 供日志关联。
func heldContext(ctx context.Context, o *owner) context.Context {
	ctx = context.WithValue(ctx, ownerKey{}, o)
	if c, err := xctx.WithLockOwner(ctx, o.id); err == nil {
		ctx = c
	}
	return ctx
}
