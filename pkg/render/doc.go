// Package render 提供内容渲染相关的子包。
//
// 子包列表：
//   - xmacro: sync 宏，按调用点串行执行宏内容
package render
