// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xkeylock: 按 key 的进程内可重入公平互斥锁，空闲 key 自动回收
package util
