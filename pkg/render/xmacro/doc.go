// Package xmacro 实现 sync 宏：保证同一调用点的宏内容同一时刻只被一个 goroutine 解析执行。
//
// 宏的 id 优先取显式参数 id，否则由调用点推导为 "<source>-<index>"：
// source 为最近祖先的 source 元数据（缺失时退回 transformation id），
// index 为宏在所属文档中的位置序号。相同 id 的执行经由 xkeylock 串行，
// 不同 id 互不阻塞。
//
// 宏内容由 [ContentParser] 解析，解析结果包装为一个 [KindMetaData] 块，
// 并标记为非生成内容（[MetaNonGeneratedContent]）。
//
// [Scan] 与 [Macro.Render] 提供一个最小的页面渲染流程，供 xsyncctl 使用：
//
//	{{sync}}counter page{{/sync}}
//	{{sync id="shared"}}global section{{/sync}}
package xmacro
