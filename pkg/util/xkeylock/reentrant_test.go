package xkeylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsync/pkg/context/xctx"
)

func TestReentrantAcquire(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	ctx := WithOwner(context.Background())
	h1, err := kl.Acquire(ctx, "k")
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	h2, err := kl.Acquire(tctx, "k")
	require.NoError(t, err, "same owner must re-enter without blocking")
	assert.Equal(t, 2, refCount(kl, "k"))

	acquired := make(chan Handle, 1)
	go func() {
		h, err := kl.Acquire(context.Background(), "k")
		assert.NoError(t, err)
		acquired <- h
	}()
	waitForRefs(t, kl, "k", 3)

	// 嵌套中释放一次不得放行其他 owner
	require.NoError(t, h2.Unlock())
	select {
	case <-acquired:
		t.Fatal("other owner acquired while outer hold still active")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, h1.Unlock())
	select {
	case h := <-acquired:
		require.NoError(t, h.Unlock())
	case <-time.After(time.Second):
		t.Fatal("other owner never acquired after final release")
	}
	assert.Equal(t, 0, kl.Len())
}

func TestReentrantViaHandleContext(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	outer, err := kl.Acquire(context.Background(), "k")
	require.NoError(t, err)

	inner, err := kl.TryAcquire(outer.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, OwnerID(outer.Context()), OwnerID(inner.Context()))

	// 没有 owner 的新 context 是另一个调用方
	_, err = kl.TryAcquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockOccupied)

	require.NoError(t, inner.Unlock())
	require.NoError(t, outer.Unlock())
}

func TestReentrantUnlockOrderIndependent(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	ctx := WithOwner(context.Background())
	h1, err := kl.Acquire(ctx, "k")
	require.NoError(t, err)
	h2, err := kl.Acquire(ctx, "k")
	require.NoError(t, err)

	// 先释放外层，内层仍然持有
	require.NoError(t, h1.Unlock())
	_, err = kl.TryAcquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockOccupied)

	require.NoError(t, h2.Unlock())
	h3, err := kl.TryAcquire(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, h3.Unlock())
}

func TestDifferentOwnersExclude(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	a := WithOwner(context.Background())
	b := WithOwner(context.Background())
	assert.NotEqual(t, OwnerID(a), OwnerID(b))

	h, err := kl.Acquire(a, "k")
	require.NoError(t, err)
	_, err = kl.TryAcquire(b, "k")
	assert.ErrorIs(t, err, ErrLockOccupied)
	require.NoError(t, h.Unlock())
}

func TestDoNested(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	depth := 0
	err := kl.Do(context.Background(), "k", func(ctx context.Context) error {
		depth++
		return kl.Do(ctx, "k", func(ctx context.Context) error {
			depth++
			return kl.Do(ctx, "other", func(context.Context) error {
				depth++
				return nil
			})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.Equal(t, 0, kl.Len())
}

func TestFanOutInsideDoExcludesOnOtherKey(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	var inside, peak atomic.Int32
	err := kl.Do(context.Background(), "page", func(ctx context.Context) error {
		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for range 4 {
			wg.Go(func() {
				errs <- kl.Do(ctx, "row", func(rctx context.Context) error {
					n := inside.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					// 持有链上的外层 key 仍可重入
					h, err := kl.TryAcquire(rctx, "page")
					if err != nil {
						return err
					}
					time.Sleep(10 * time.Millisecond)
					inside.Add(-1)
					return h.Unlock()
				})
			})
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load(), "goroutines sharing a handle context must not enter row together")
	assert.Equal(t, 0, kl.Len())
}

func TestSiblingHandleContextsQueue(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	outer, err := kl.Acquire(context.Background(), "page")
	require.NoError(t, err)

	first, err := kl.TryAcquire(outer.Context(), "row")
	require.NoError(t, err)

	// 兄弟调用方只共享 outer 的 owner，不属于 first 的持有链
	_, err = kl.TryAcquire(outer.Context(), "row")
	require.ErrorIs(t, err, ErrLockOccupied)

	nested, err := kl.TryAcquire(first.Context(), "row")
	require.NoError(t, err)
	require.NoError(t, nested.Unlock())

	require.NoError(t, first.Unlock())
	require.NoError(t, outer.Unlock())
	assert.Equal(t, 0, kl.Len())
}

func TestHandleContextCarriesLockOwner(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	h, err := kl.Acquire(context.Background(), "k")
	require.NoError(t, err)
	assert.NotZero(t, xctx.LockOwner(h.Context()))
	assert.Equal(t, OwnerID(h.Context()), xctx.LockOwner(h.Context()))
	require.NoError(t, h.Unlock())
}

func TestDoPropagatesError(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	errWork := errors.New("work failed")
	err := kl.Do(context.Background(), "k", func(context.Context) error {
		return errWork
	})
	assert.Same(t, errWork, err)
	assert.Equal(t, 0, kl.Len())

	h, err := kl.TryAcquire(context.Background(), "k")
	require.NoError(t, err, "lock must be released after failed work")
	require.NoError(t, h.Unlock())
}

func TestDoReleasesOnPanic(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	assert.PanicsWithValue(t, "boom", func() {
		_ = kl.Do(context.Background(), "k", func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, kl.Len())
}

func TestDoNilFunc(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	assert.ErrorIs(t, kl.Do(context.Background(), "k", nil), ErrNilFunc)
}

func TestOwnerHelpers(t *testing.T) {
	ctx := context.Background()
	assert.False(t, HasOwner(ctx))
	assert.Zero(t, OwnerID(ctx))

	owned := WithOwner(ctx)
	assert.True(t, HasOwner(owned))
	assert.NotZero(t, OwnerID(owned))

	same, o := ensureOwner(owned)
	assert.Equal(t, owned, same)
	assert.Equal(t, OwnerID(owned), o.id)

	assert.PanicsWithValue(t, "xkeylock: nil Context", func() {
		WithOwner(nil) //nolint:staticcheck // 测试 nil ctx panic 行为
	})
}
