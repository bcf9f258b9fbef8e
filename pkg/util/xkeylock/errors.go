package xkeylock

import "errors"

var (
	// ErrLockNotHeld 表示 Handle 已释放。
	// Unlock 第二次及后续调用时返回此错误。
	ErrLockNotHeld = errors.New("xkeylock: lock not held")

	// ErrLockOccupied 表示锁被其他 owner 持有，或已有等待者排队。
	// 仅由 TryAcquire 返回。
	ErrLockOccupied = errors.New("xkeylock: lock occupied")

	// ErrClosed 表示 Locker 已关闭。
	// Close 后调用 Acquire/TryAcquire/Do 返回此错误。
	ErrClosed = errors.New("xkeylock: closed")

	// ErrMaxKeysExceeded 表示已达到最大 key 数量限制。
	ErrMaxKeysExceeded = errors.New("xkeylock: max keys exceeded")

	// ErrInvalidKey 表示 key 为空字符串。
	ErrInvalidKey = errors.New("xkeylock: invalid key")

	// ErrInvalidShardCount 表示分片数配置无效。
	ErrInvalidShardCount = errors.New("xkeylock: invalid shard count")

	// ErrNilFunc 表示 Do 传入了 nil 函数。
	ErrNilFunc = errors.New("xkeylock: nil func")
)
