package xmacro

import "strings"

// 块类型
const (
	KindMetaData  = "metadata"
	KindParagraph = "paragraph"
	KindText      = "text"
)

// 元数据 key 与取值
const (
	// MetaSource 标记子树内容的来源，参与 id 推导。
	MetaSource = "source"
	// MetaNonGeneratedContent 标记子树为非生成内容，取值为内容类型。
	MetaNonGeneratedContent = "non-generated-content"
	// ContentTypeBlockList 表示内容是块列表。
	ContentTypeBlockList = "java.util.List<org.xwiki.rendering.block.Block>"
)

// Block 是最小化的内容树节点。
type Block struct {
	Kind     string
	Text     string
	Meta     map[string]string
	Children []*Block
}

// PlainText 将块列表展平为纯文本，段落之间以空行分隔。
func PlainText(blocks []*Block) string {
	var parts []string
	for _, b := range blocks {
		parts = appendText(parts, b)
	}
	return strings.Join(parts, "\n\n")
}

func appendText(parts []string, b *Block) []string {
	if b == nil {
		return parts
	}
	switch b.Kind {
	case KindParagraph, KindText:
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	for _, c := range b.Children {
		parts = appendText(parts, c)
	}
	return parts
}
