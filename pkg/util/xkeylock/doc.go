// Package xkeylock 提供基于 key 的进程内可重入公平互斥锁。
//
// 同一 key 的调用方互斥执行，不同 key 之间完全并行。
// 典型场景：按文档位置或显式 id 串行化渲染片段、按业务 key 互斥更新。
//
// # 特性
//
//   - 可重入：同一逻辑调用方（owner）可对同一 key 嵌套 Acquire，
//     需要等量的 Unlock 才真正释放
//   - 公平：等待者按到达顺序获得锁（FIFO 直接移交），新来者不会插队
//   - 自动回收：条目按引用计数管理（持有者 + 等待者），归零立即从 map 删除
//   - 分片 map：默认 32 分片（xxhash），不同 key 不经过全局锁
//   - Context 支持：Acquire 支持超时和取消（ctx 不得为 nil，否则 panic）
//   - 关闭语义：Close() 拒绝新请求并唤醒等待者，已持有的锁不受影响
//
// # 逻辑调用方（owner）
//
// Go 没有线程身份，可重入的"同一调用方"由 context 携带的 owner 标识：
//
//	ctx = xkeylock.WithOwner(ctx)
//	h1, _ := kl.Acquire(ctx, "doc1-0")
//	h2, _ := kl.Acquire(ctx, "doc1-0") // 立即成功，持有计数 = 2
//	_ = h2.Unlock()                     // 仍持有
//	_ = h1.Unlock()                     // 真正释放
//
// ctx 中没有 owner 时，Acquire 会创建新的 owner，并通过 [Handle.Context] 返回；
// 嵌套调用应使用该 context。[Locker.Do] 自动完成这一传递。
//
// 每次新获得锁，[Handle.Context] 都携带本次持有专属的子 owner，
// 它只能重入这条持有链上的 key。在 Do 的 fn 中扇出多个 goroutine
// 获取其他 key 时，它们彼此互斥，不会因为共享 context 而一起进入。
//
// # 误用
//
// 对同一 Handle 重复 Unlock 返回 [ErrLockNotHeld]，不会影响其他持有者。
// 持有者永不释放会导致同 key 的后续调用方一直阻塞，这是互斥语义的一部分。
package xkeylock
