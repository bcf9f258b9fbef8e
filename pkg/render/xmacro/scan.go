package xmacro

import (
	"context"
	"fmt"
	"strings"
)

const (
	openPrefix = "{{sync"
	closeTag   = "{{/sync}}"
	tagEnd     = "}}"
)

// Segment 是页面扫描的结果片段：字面文本或一次 sync 宏调用。
type Segment struct {
	// Macro 为 false 时片段是字面文本 Text。
	Macro bool
	Text  string

	Params  Parameters
	Content string
	// Index 是宏调用在页面中的序号，从 0 开始。
	Index int64
	// Inline 表示宏与其他文本同处一行。
	Inline bool
}

// Scan 将页面切分为字面文本与 sync 宏调用。
//
// 支持 {{sync}}...{{/sync}}、{{sync id="x"}}...{{/sync}} 与空内容的 {{sync/}}。
// 嵌套的 sync 宏作为外层内容的一部分原样保留。
func Scan(page string) ([]Segment, error) {
	var (
		segs  []Segment
		index int64
		pos   int
	)
	for {
		start := findOpen(page, pos)
		if start < 0 {
			break
		}
		endAt := findTagEnd(page, start+len(openPrefix))
		if endAt < 0 {
			return nil, fmt.Errorf("%w: at offset %d", ErrUnterminatedMacro, start)
		}
		tagStop := endAt + len(tagEnd)
		rawParams := page[start+len(openPrefix) : endAt]
		selfClosing := strings.HasSuffix(rawParams, "/")
		rawParams = strings.TrimSuffix(rawParams, "/")

		params, err := parseParams(rawParams)
		if err != nil {
			return nil, err
		}

		var content string
		end := tagStop
		if !selfClosing {
			closeAt := findClose(page, tagStop)
			if closeAt < 0 {
				return nil, fmt.Errorf("%w: at offset %d", ErrUnterminatedMacro, start)
			}
			content = page[tagStop:closeAt]
			end = closeAt + len(closeTag)
		}

		if start > pos {
			segs = append(segs, Segment{Text: page[pos:start]})
		}
		segs = append(segs, Segment{
			Macro:   true,
			Params:  params,
			Content: content,
			Index:   index,
			Inline:  isInline(page, start, end),
		})
		index++
		pos = end
	}
	if pos < len(page) {
		segs = append(segs, Segment{Text: page[pos:]})
	}
	return segs, nil
}

// findOpen 返回 from 之后第一个 sync 开始标签的位置，排除 {{syncfoo}} 之类的其他宏。
func findOpen(page string, from int) int {
	for from < len(page) {
		rel := strings.Index(page[from:], openPrefix)
		if rel < 0 {
			return -1
		}
		at := from + rel
		next := at + len(openPrefix)
		if next < len(page) {
			switch page[next] {
			case '}', '/', ' ', '\t', '\n':
				return at
			}
		}
		from = next
	}
	return -1
}

// findClose 返回与已打开宏匹配的结束标签位置，计入嵌套。
func findClose(page string, from int) int {
	depth := 1
	for from < len(page) {
		closeRel := strings.Index(page[from:], closeTag)
		if closeRel < 0 {
			return -1
		}
		closeAt := from + closeRel
		if openAt := findOpen(page, from); openAt >= 0 && openAt < closeAt {
			endAt := findTagEnd(page, openAt+len(openPrefix))
			if endAt < 0 {
				return -1
			}
			if !strings.HasSuffix(page[openAt:endAt], "/") {
				depth++
			}
			from = endAt + len(tagEnd)
			continue
		}
		depth--
		if depth == 0 {
			return closeAt
		}
		from = closeAt + len(closeTag)
	}
	return -1
}

// findTagEnd 返回开始标签的 }} 位置，跳过引号内的内容与 ~ 转义字符。
func findTagEnd(page string, from int) int {
	quoted := false
	for i := from; i < len(page); i++ {
		switch c := page[i]; {
		case quoted && c == '~':
			i++
		case c == '"':
			quoted = !quoted
		case !quoted && strings.HasPrefix(page[i:], tagEnd):
			return i
		}
	}
	return -1
}

func isInline(page string, start, end int) bool {
	lineStart := strings.LastIndexByte(page[:start], '\n') + 1
	if strings.TrimSpace(page[lineStart:start]) != "" {
		return true
	}
	rest := page[end:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest) != ""
}

// parseParams 解析 name="value" 或 name=value 形式的参数，引号内 ~ 为转义符。
func parseParams(raw string) (Parameters, error) {
	var p Parameters
	s := strings.TrimSpace(raw)
	for s != "" {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return p, fmt.Errorf("%w: %q", ErrInvalidParameter, s)
		}
		name := strings.TrimSpace(s[:eq])
		s = strings.TrimLeft(s[eq+1:], " \t")

		var value string
		if strings.HasPrefix(s, `"`) {
			var b strings.Builder
			i := 1
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '~' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
			}
			if i >= len(s) {
				return p, fmt.Errorf("%w: unclosed quote in %q", ErrInvalidParameter, raw)
			}
			value = b.String()
			s = s[i+1:]
		} else {
			stop := strings.IndexAny(s, " \t")
			if stop < 0 {
				stop = len(s)
			}
			value = s[:stop]
			s = s[stop:]
		}

		if !strings.EqualFold(name, "id") {
			return p, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
		}
		p.ID = value
		s = strings.TrimSpace(s)
	}
	return p, nil
}

// Render 依次执行页面中的 sync 宏，将输出与字面文本拼接为纯文本。
// source 作为 transformation id 参与调用点标识推导。
func (m *Macro) Render(ctx context.Context, page, source string) (string, error) {
	segs, err := Scan(page)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segs {
		if !seg.Macro {
			b.WriteString(seg.Text)
			continue
		}
		blocks, err := m.Execute(ctx, seg.Params, seg.Content, &MacroContext{
			TransformationID: source,
			Index:            seg.Index,
			Inline:           seg.Inline,
		})
		if err != nil {
			return "", fmt.Errorf("xmacro: render macro %d: %w", seg.Index, err)
		}
		b.WriteString(PlainText(blocks))
	}
	return b.String(), nil
}
