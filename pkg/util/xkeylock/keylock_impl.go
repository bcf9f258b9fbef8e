package xkeylock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"github.com/omeyang/xsync/pkg/observability/xmetrics"
)

const componentName = "xkeylock"

// keyLockImpl 是 Locker 的分片实现。
type keyLockImpl struct {
	shards   []shard
	mask     uint64
	opts     *options
	closed   atomic.Bool
	keyCount atomic.Int64

	// done 在 Close 时取消，用于唤醒等待者。
	done   context.Context
	cancel context.CancelFunc
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// lockEntry 表示一个 key 的锁条目。
//
// sem 是容量为 1 的 semaphore，用作公平互斥量：
// 等待者按 FIFO 排队，释放时直接移交给队首，TryAcquire 不会越过排队者。
type lockEntry struct {
	sem *semaphore.Weighted

	mu    sync.Mutex // 保护 owner 和 holds
	owner *owner
	holds int

	// refcnt 统计引用此条目的调用（持有的 Handle + 等待者 + 进行中的 TryAcquire），
	// 由所在 shard 的 mu 保护，归零时条目从 map 中删除。
	refcnt int
}

func newLockEntry() *lockEntry {
	return &lockEntry{sem: semaphore.NewWeighted(1)}
}

// reenter 在 o 属于当前持有链时增加持有计数。
//
// e.owner 是获取时派生的子 owner：o 为它本身或其后代（经 Handle.Context 嵌套）时可重入；
// 由 WithOwner 显式创建的 owner 可重入自己直接获得的锁。
// 仅共享父 owner 的兄弟 goroutine 不满足条件，需要排队。
func (e *lockEntry) reenter(o *owner) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holds == 0 {
		return false
	}
	if !o.within(e.owner) && (!o.explicit || e.owner.parent != o) {
		return false
	}
	e.holds++
	return true
}

// claim 在获得 sem 后记录持有者。
func (e *lockEntry) claim(o *owner) {
	e.mu.Lock()
	e.owner = o
	e.holds = 1
	e.mu.Unlock()
}

// release 减少持有计数，归零时释放 sem。
func (e *lockEntry) release() {
	e.mu.Lock()
	e.holds--
	if e.holds > 0 {
		e.mu.Unlock()
		return
	}
	e.owner = nil
	e.mu.Unlock()
	e.sem.Release(1)
}

// handle 实现 Handle 接口。
type handle struct {
	kl    *keyLockImpl
	ctx   context.Context
	key   string
	entry *lockEntry
	done  atomic.Bool
}

func newKeyLockImpl(opts *options) *keyLockImpl {
	shards := make([]shard, opts.shardCount)
	for i := range shards {
		shards[i].entries = make(map[string]*lockEntry)
	}
	// shardCount 已验证为 [1, 65536] 内的 2 的幂，int → uint64 转换安全。
	mask := uint64(opts.shardCount - 1)
	done, cancel := context.WithCancel(context.Background())
	return &keyLockImpl{
		shards: shards,
		mask:   mask,
		opts:   opts,
		done:   done,
		cancel: cancel,
	}
}

func (kl *keyLockImpl) getShard(key string) *shard {
	h := xxhash.Sum64String(key)
	return &kl.shards[h&kl.mask]
}

// getOrCreate 获取或创建 lockEntry，并在同一临界区内增加引用计数。
// 查找、创建、计数三步对同 key 原子，并发的首次调用只会看到同一个条目。
func (kl *keyLockImpl) getOrCreate(key string) (*lockEntry, error) {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl.closed.Load() {
		return nil, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		if kl.opts.maxKeys > 0 {
			// CAS 严格限制 key 数量，避免跨分片并发突破上限。
			for {
				cur := kl.keyCount.Load()
				if cur >= int64(kl.opts.maxKeys) {
					return nil, ErrMaxKeysExceeded
				}
				if kl.keyCount.CompareAndSwap(cur, cur+1) {
					break
				}
			}
		} else {
			kl.keyCount.Add(1)
		}
		e = newLockEntry()
		s.entries[key] = e
	}
	e.refcnt++
	return e, nil
}

// releaseRef 减少引用计数，归零时从 map 删除。
func (kl *keyLockImpl) releaseRef(key string, entry *lockEntry) {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.refcnt--
	if entry.refcnt == 0 {
		delete(s.entries, key)
		kl.keyCount.Add(-1)
	}
}

func (kl *keyLockImpl) Acquire(ctx context.Context, key string) (Handle, error) {
	if ctx == nil {
		panic("xkeylock: nil Context")
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	// 快速检查：ctx 已取消时避免进入 getOrCreate 造成不必要的锁竞争。
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kl.closed.Load() {
		return nil, ErrClosed
	}

	ctx, o := ensureOwner(ctx)
	_, span := xmetrics.Start(ctx, kl.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "acquire",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", key)},
	})

	start := time.Now()
	h, reentrant, err := kl.acquire(ctx, key, o)
	span.End(xmetrics.Result{
		Err: err,
		Attrs: []xmetrics.Attr{
			xmetrics.Bool("reentrant", reentrant),
			xmetrics.Duration("wait", time.Since(start)),
		},
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (kl *keyLockImpl) acquire(ctx context.Context, key string, o *owner) (*handle, bool, error) {
	entry, err := kl.getOrCreate(key)
	if err != nil {
		return nil, false, err
	}
	if entry.reenter(o) {
		return kl.newHandle(ctx, key, entry), true, nil
	}
	if !entry.sem.TryAcquire(1) {
		kl.opts.logger.Debug(ctx, "xkeylock: waiting for lock",
			slog.String("key", key), slog.Uint64("owner", o.id))
		if err := kl.wait(ctx, entry); err != nil {
			kl.releaseRef(key, entry)
			return nil, false, err
		}
	}
	held := o.child()
	entry.claim(held)
	return kl.newHandle(heldContext(ctx, held), key, entry), false, nil
}

// wait 排队等待 entry 的 sem，ctx 取消或 Locker 关闭时放弃。
func (kl *keyLockImpl) wait(ctx context.Context, entry *lockEntry) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(kl.done, cancel)
	defer stop()

	if err := entry.sem.Acquire(wctx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrClosed
	}
	return nil
}

func (kl *keyLockImpl) TryAcquire(ctx context.Context, key string) (Handle, error) {
	if ctx == nil {
		panic("xkeylock: nil Context")
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	if kl.closed.Load() {
		return nil, ErrClosed
	}
	ctx, o := ensureOwner(ctx)
	entry, err := kl.getOrCreate(key)
	if err != nil {
		return nil, err
	}
	if entry.reenter(o) {
		return kl.newHandle(ctx, key, entry), nil
	}
	if entry.sem.TryAcquire(1) {
		held := o.child()
		entry.claim(held)
		return kl.newHandle(heldContext(ctx, held), key, entry), nil
	}
	kl.releaseRef(key, entry)
	return nil, ErrLockOccupied
}

func (kl *keyLockImpl) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	if fn == nil {
		return ErrNilFunc
	}
	h, err := kl.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := h.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn(h.Context())
}

func (kl *keyLockImpl) newHandle(ctx context.Context, key string, entry *lockEntry) *handle {
	return &handle{kl: kl, ctx: ctx, key: key, entry: entry}
}

func (kl *keyLockImpl) Len() int {
	return int(max(kl.keyCount.Load(), 0))
}

func (kl *keyLockImpl) Keys() []string {
	keys := make([]string, 0, max(kl.keyCount.Load(), 0))
	for i := range kl.shards {
		s := &kl.shards[i]
		s.mu.Lock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}
	return keys
}

func (kl *keyLockImpl) Close() error {
	if !kl.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	kl.cancel()
	kl.opts.logger.Info(context.Background(), "xkeylock: closed",
		slog.Int("active_keys", kl.Len()))
	return nil
}

// handle 方法

func (h *handle) Unlock() error {
	if !h.done.CompareAndSwap(false, true) {
		h.kl.opts.logger.Warn(h.ctx, "xkeylock: unlock of released handle",
			slog.String("key", h.key))
		return ErrLockNotHeld
	}
	h.entry.release()
	h.kl.releaseRef(h.key, h.entry)
	return nil
}

func (h *handle) Key() string {
	return h.key
}

func (h *handle) Context() context.Context {
	return h.ctx
}

// 编译期接口检查。
var (
	_ Locker = (*keyLockImpl)(nil)
	_ Handle = (*handle)(nil)
)
