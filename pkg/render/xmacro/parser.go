package xmacro

import (
	"context"
	"strings"
)

//go:generate mockgen -source=parser.go -destination=mock_parser_test.go -package=xmacro

// ContentParser 将宏内容解析为内容树，返回文档根块。
// 宏输出取根块的 Children。
type ContentParser interface {
	Parse(ctx context.Context, content string, mctx *MacroContext) (*Block, error)
}

// TextParser 是纯文本解析器：按空行切分段落，行内模式下整体作为一个文本块。
type TextParser struct{}

// Parse 实现 ContentParser。
func (TextParser) Parse(ctx context.Context, content string, mctx *MacroContext) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := &Block{Kind: KindMetaData}
	if mctx != nil && mctx.Inline {
		if text := strings.TrimSpace(content); text != "" {
			root.Children = append(root.Children, &Block{Kind: KindText, Text: text})
		}
		return root, nil
	}
	for _, para := range splitParagraphs(content) {
		root.Children = append(root.Children, &Block{Kind: KindParagraph, Text: para})
	}
	return root, nil
}

func splitParagraphs(content string) []string {
	var (
		paras []string
		cur   []string
	)
	flush := func() {
		if len(cur) > 0 {
			paras = append(paras, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return paras
}
