package xmacro

import (
	"context"
	"strconv"
)

// Parameters 是 sync 宏的参数。
type Parameters struct {
	// ID 显式指定锁标识，非空时覆盖调用点推导。
	ID string
}

// MacroContext 描述宏调用点。
type MacroContext struct {
	// TransformationID 是当前渲染转换的 id，通常为文档引用。
	TransformationID string
	// Source 是最近祖先块的 source 元数据，没有时为空。
	Source string
	// Index 是宏块在所属文档中的位置。
	Index int64
	// Inline 表示宏处于行内位置。
	Inline bool
}

// IdentityResolver 推导调用点标识。
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, mctx *MacroContext) string
}

// IdentityResolverFunc 将函数适配为 IdentityResolver。
type IdentityResolverFunc func(ctx context.Context, mctx *MacroContext) string

// ResolveIdentity 调用 f。
func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context, mctx *MacroContext) string {
	return f(ctx, mctx)
}

// SourceIndexResolver 以 "<source>-<index>" 作为调用点标识。
// source 优先取 Source 元数据，否则取 TransformationID，二者皆空时为空串。
type SourceIndexResolver struct{}

// ResolveIdentity 实现 IdentityResolver。
func (SourceIndexResolver) ResolveIdentity(_ context.Context, mctx *MacroContext) string {
	source := mctx.Source
	if source == "" {
		source = mctx.TransformationID
	}
	return source + "-" + strconv.FormatInt(mctx.Index, 10)
}

// ResolveID 返回宏的锁标识：显式 id 优先，否则由 resolver 推导。
// resolver 为 nil 时使用 SourceIndexResolver。
func ResolveID(ctx context.Context, params Parameters, mctx *MacroContext, resolver IdentityResolver) string {
	if params.ID != "" {
		return params.ID
	}
	if resolver == nil {
		resolver = SourceIndexResolver{}
	}
	return resolver.ResolveIdentity(ctx, mctx)
}
