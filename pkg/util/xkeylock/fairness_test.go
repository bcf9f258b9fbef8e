package xkeylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFairnessArrivalOrder(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	holder, err := kl.Acquire(context.Background(), "k")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, err := kl.Acquire(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			assert.NoError(t, h.Unlock())
		}(i)
		// 确认第 i 个等待者已排队后再启动下一个，保证到达顺序
		waitForRefs(t, kl, "k", i+1)
	}

	require.NoError(t, holder.Unlock())
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTryAcquireDoesNotJumpQueue(t *testing.T) {
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	holder, err := kl.Acquire(context.Background(), "k")
	require.NoError(t, err)

	got := make(chan Handle, 1)
	go func() {
		h, err := kl.Acquire(context.Background(), "k")
		assert.NoError(t, err)
		got <- h
	}()
	waitForRefs(t, kl, "k", 2)

	require.NoError(t, holder.Unlock())
	// 锁已直接移交给排队者，新来者的 TryAcquire 不得成功
	_, err = kl.TryAcquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockOccupied)

	require.NoError(t, (<-got).Unlock())
}

func TestNoStarvationUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	kl := newForTest(t)
	defer func() { require.NoError(t, kl.Close()) }()

	const workers = 8
	var (
		grants  [workers]atomic.Int64
		maxWait atomic.Int64
		stop    atomic.Bool
		wg      sync.WaitGroup
	)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				start := time.Now()
				h, err := kl.Acquire(context.Background(), "hot")
				if !assert.NoError(t, err) {
					return
				}
				waited := int64(time.Since(start))
				for {
					cur := maxWait.Load()
					if waited <= cur || maxWait.CompareAndSwap(cur, waited) {
						break
					}
				}
				grants[w].Add(1)
				time.Sleep(100 * time.Microsecond)
				assert.NoError(t, h.Unlock())
			}
		}()
	}

	time.Sleep(300 * time.Millisecond)
	stop.Store(true)
	wg.Wait()

	for w := range workers {
		assert.Positive(t, grants[w].Load(), "worker %d starved", w)
	}
	// FIFO 下等待上限约为 workers 个临界区，给足调度余量
	assert.Less(t, time.Duration(maxWait.Load()), 200*time.Millisecond)
}
