package xmacro

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xsync/pkg/observability/xlog"
	"github.com/omeyang/xsync/pkg/util/xkeylock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLocker(t *testing.T) xkeylock.Locker {
	t.Helper()
	locker, err := xkeylock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	return locker
}

func newMacro(t *testing.T, parser ContentParser, opts ...Option) (*Macro, xkeylock.Locker) {
	t.Helper()
	locker := newLocker(t)
	m, err := New(locker, parser, opts...)
	require.NoError(t, err)
	return m, locker
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, TextParser{})
	assert.ErrorIs(t, err, ErrNilLocker)

	_, err = New(newLocker(t), nil)
	assert.ErrorIs(t, err, ErrNilParser)
}

func TestDescriptor(t *testing.T) {
	m, _ := newMacro(t, TextParser{})
	d := m.Descriptor()
	assert.Equal(t, "Sync", d.Name)
	assert.Equal(t, "Development", d.Category)
	assert.Equal(t, ContentTypeBlockList, d.ContentType)
	assert.False(t, d.ContentMandatory)
	assert.True(t, m.SupportsInlineMode())
}

func TestExecuteWrapsParsedChildren(t *testing.T) {
	m, locker := newMacro(t, TextParser{})

	blocks, err := m.Execute(context.Background(), Parameters{}, "first line\nsecond\n\n  next  \n",
		&MacroContext{TransformationID: "Main.WebHome"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	meta := blocks[0]
	assert.Equal(t, KindMetaData, meta.Kind)
	assert.Equal(t, ContentTypeBlockList, meta.Meta[MetaNonGeneratedContent])
	require.Len(t, meta.Children, 2)
	assert.Equal(t, &Block{Kind: KindParagraph, Text: "first line\nsecond"}, meta.Children[0])
	assert.Equal(t, &Block{Kind: KindParagraph, Text: "next"}, meta.Children[1])
	assert.Zero(t, locker.Len())
}

func TestExecuteInline(t *testing.T) {
	m, _ := newMacro(t, TextParser{})

	blocks, err := m.Execute(context.Background(), Parameters{}, " a\n\nb ",
		&MacroContext{TransformationID: "doc", Inline: true})
	require.NoError(t, err)
	require.Len(t, blocks[0].Children, 1)
	assert.Equal(t, KindText, blocks[0].Children[0].Kind)
	assert.Equal(t, "a\n\nb", PlainText(blocks))
}

func TestExecuteNilMacroContext(t *testing.T) {
	m, _ := newMacro(t, TextParser{})
	_, err := m.Execute(context.Background(), Parameters{}, "x", nil)
	assert.ErrorIs(t, err, ErrNilMacroContext)
}

func TestExecuteParserErrorUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	parser := NewMockContentParser(ctrl)
	errBoom := errors.New("parse failed")

	mctx := &MacroContext{TransformationID: "doc1", Index: 2}
	parser.EXPECT().Parse(gomock.Any(), "bad", mctx).Return(nil, errBoom)

	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)

	m, locker := newMacro(t, parser, WithLogger(logger))
	blocks, err := m.Execute(context.Background(), Parameters{}, "bad", mctx)
	assert.Nil(t, blocks)
	assert.Same(t, errBoom, err)
	assert.Zero(t, locker.Len())
	assert.Contains(t, buf.String(), "id=doc1-2")

	// 失败后同一 id 仍可获取
	h, err := locker.TryAcquire(context.Background(), "doc1-2")
	require.NoError(t, err)
	require.NoError(t, h.Unlock())
}

func TestExecuteUsesExplicitID(t *testing.T) {
	ctrl := gomock.NewController(t)
	parser := NewMockContentParser(ctrl)
	m, locker := newMacro(t, parser)

	parser.EXPECT().Parse(gomock.Any(), "body", gomock.Any()).
		DoAndReturn(func(context.Context, string, *MacroContext) (*Block, error) {
			assert.Equal(t, []string{"shared"}, locker.Keys())
			return &Block{}, nil
		})

	_, err := m.Execute(context.Background(), Parameters{ID: "shared"}, "body",
		&MacroContext{TransformationID: "doc", Index: 7})
	require.NoError(t, err)
}

func TestExecuteSerializesSameCallSite(t *testing.T) {
	ctrl := gomock.NewController(t)
	parser := NewMockContentParser(ctrl)
	m, _ := newMacro(t, parser)

	const workers = 8
	var inside, maxInside atomic.Int32
	parser.EXPECT().Parse(gomock.Any(), "counter", gomock.Any()).Times(workers).
		DoAndReturn(func(context.Context, string, *MacroContext) (*Block, error) {
			n := inside.Add(1)
			for {
				old := maxInside.Load()
				if n <= old || maxInside.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			return &Block{}, nil
		})

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			_, err := m.Execute(context.Background(), Parameters{}, "counter",
				&MacroContext{TransformationID: "Main.Counter", Index: 0})
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestExecuteDifferentCallSitesOverlap(t *testing.T) {
	ctrl := gomock.NewController(t)
	parser := NewMockContentParser(ctrl)
	m, _ := newMacro(t, parser)

	firstIn := make(chan struct{})
	secondDone := make(chan struct{})
	parser.EXPECT().Parse(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, _ string, mctx *MacroContext) (*Block, error) {
			if mctx.Index == 0 {
				close(firstIn)
				select {
				case <-secondDone:
				case <-time.After(5 * time.Second):
					return nil, errors.New("doc1-1 was blocked by doc1-0")
				}
			}
			return &Block{}, nil
		})

	errc := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), Parameters{}, "A", &MacroContext{TransformationID: "doc1", Index: 0})
		errc <- err
	}()
	<-firstIn
	_, err := m.Execute(context.Background(), Parameters{}, "C", &MacroContext{TransformationID: "doc1", Index: 1})
	require.NoError(t, err)
	close(secondDone)
	require.NoError(t, <-errc)
}

func TestExecuteHonorsContext(t *testing.T) {
	m, locker := newMacro(t, TextParser{})

	h, err := locker.Acquire(context.Background(), "doc-0")
	require.NoError(t, err)
	defer func() { _ = h.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Execute(ctx, Parameters{}, "x", &MacroContext{TransformationID: "doc"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNestedSyncIsReentrant(t *testing.T) {
	var m *Macro
	parser := parserFunc(func(ctx context.Context, content string, mctx *MacroContext) (*Block, error) {
		if content == "outer" {
			// 嵌套宏通过同一 owner 的 ctx 再次进入同一 id
			inner, err := m.Execute(ctx, Parameters{ID: "page"}, "inner", mctx)
			if err != nil {
				return nil, err
			}
			return &Block{Children: inner}, nil
		}
		return &Block{Children: []*Block{{Kind: KindText, Text: content}}}, nil
	})
	m, _ = newMacro(t, parser)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	blocks, err := m.Execute(ctx, Parameters{ID: "page"}, "outer", &MacroContext{})
	require.NoError(t, err)
	assert.Equal(t, "inner", PlainText(blocks))
}

type parserFunc func(ctx context.Context, content string, mctx *MacroContext) (*Block, error)

func (f parserFunc) Parse(ctx context.Context, content string, mctx *MacroContext) (*Block, error) {
	return f(ctx, content, mctx)
}
