package xmacro

import (
	"context"
	"log/slog"

	"github.com/omeyang/xsync/pkg/observability/xlog"
	"github.com/omeyang/xsync/pkg/observability/xmetrics"
	"github.com/omeyang/xsync/pkg/util/xkeylock"
)

// 宏描述信息
const (
	MacroName           = "Sync"
	MacroDescription    = "Help making sure the content of the macro is executed by only one thread at a time."
	ContentDescription  = "The content to execute"
	CategoryDevelopment = "Development"
)

// Descriptor 描述宏的名称、用途与内容类型。
type Descriptor struct {
	Name               string
	Description        string
	ContentDescription string
	ContentType        string
	ContentMandatory   bool
	Category           string
}

// Option 配置 Macro。
type Option func(*Macro)

// WithResolver 设置调用点标识推导，nil 忽略。
func WithResolver(r IdentityResolver) Option {
	return func(m *Macro) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithLogger 设置日志记录器，nil 忽略。
func WithLogger(l xlog.Logger) Option {
	return func(m *Macro) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver 设置观测器。
func WithObserver(o xmetrics.Observer) Option {
	return func(m *Macro) {
		m.observer = o
	}
}

// Macro 是 sync 宏的执行器，可被多个 goroutine 共享。
type Macro struct {
	locker   xkeylock.Locker
	parser   ContentParser
	resolver IdentityResolver
	logger   xlog.Logger
	observer xmetrics.Observer
}

// New 创建 sync 宏。locker 由调用方持有并负责关闭。
func New(locker xkeylock.Locker, parser ContentParser, opts ...Option) (*Macro, error) {
	if locker == nil {
		return nil, ErrNilLocker
	}
	if parser == nil {
		return nil, ErrNilParser
	}
	m := &Macro{
		locker:   locker,
		parser:   parser,
		resolver: SourceIndexResolver{},
		logger:   xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Descriptor 返回宏描述。
func (m *Macro) Descriptor() Descriptor {
	return Descriptor{
		Name:               MacroName,
		Description:        MacroDescription,
		ContentDescription: ContentDescription,
		ContentType:        ContentTypeBlockList,
		Category:           CategoryDevelopment,
	}
}

// SupportsInlineMode 宏可出现在行内位置。
func (m *Macro) SupportsInlineMode() bool { return true }

// Execute 在 id 对应的锁内解析 content。
//
// 返回单个 KindMetaData 块，子块为解析结果，标记为非生成内容。
// 解析错误原样返回，锁在任何情况下都会释放。
func (m *Macro) Execute(ctx context.Context, params Parameters, content string, mctx *MacroContext) (blocks []*Block, err error) {
	if mctx == nil {
		return nil, ErrNilMacroContext
	}
	id := ResolveID(ctx, params, mctx, m.resolver)

	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: "xmacro",
		Operation: "execute",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.String("id", id),
			xmetrics.Bool("explicit", params.ID != ""),
			xmetrics.Bool("inline", mctx.Inline),
		},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	m.logger.Debug(ctx, "xmacro: resolved sync id",
		slog.String("id", id), slog.Bool("explicit", params.ID != ""))

	var root *Block
	err = m.locker.Do(ctx, id, func(ctx context.Context) error {
		var perr error
		root, perr = m.parser.Parse(ctx, content, mctx)
		return perr
	})
	if err != nil {
		m.logger.Warn(ctx, "xmacro: sync content failed", slog.String("id", id), xlog.Err(err))
		return nil, err
	}

	var children []*Block
	if root != nil {
		children = root.Children
	}
	return []*Block{{
		Kind:     KindMetaData,
		Meta:     map[string]string{MetaNonGeneratedContent: ContentTypeBlockList},
		Children: children,
	}}, nil
}
