package xmacro

import "errors"

var (
	// ErrNilLocker 表示 New 未提供 Locker。
	ErrNilLocker = errors.New("xmacro: nil locker")

	// ErrNilParser 表示 New 未提供 ContentParser。
	ErrNilParser = errors.New("xmacro: nil content parser")

	// ErrNilMacroContext 表示 Execute 未提供调用点上下文。
	ErrNilMacroContext = errors.New("xmacro: nil macro context")

	// ErrUnterminatedMacro 表示 {{sync}} 缺少匹配的 {{/sync}}。
	ErrUnterminatedMacro = errors.New("xmacro: unterminated sync macro")

	// ErrInvalidParameter 表示宏参数无法解析或名称未知。
	ErrInvalidParameter = errors.New("xmacro: invalid macro parameter")
)
