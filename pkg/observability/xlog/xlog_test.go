package xlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsync/pkg/context/xctx"
)

func TestBuildTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New().SetOutput(&buf).Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "rendered", slog.String("key", "doc1-0"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=rendered")
	assert.Contains(t, out, "key=doc1-0")
}

func TestBuildJSONLoggerWithEnrich(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New().SetOutput(&buf).SetFormat("JSON").Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	ctx, err := xctx.WithRequestID(context.Background(), "req-1")
	require.NoError(t, err)
	ctx, err = xctx.WithTraceID(ctx, "0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	ctx, err = xctx.WithLockOwner(ctx, 7)
	require.NoError(t, err)

	logger.Warn(ctx, "slow render", Err(errors.New("timeout")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "req-1", rec[xctx.KeyRequestID])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", rec[xctx.KeyTraceID])
	assert.Equal(t, "7", rec[xctx.KeyLockOwner])
	assert.Equal(t, "timeout", rec["error"])
}

func TestEnrichDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New().SetOutput(&buf).SetEnrich(false).Build()
	require.NoError(t, err)

	ctx, err := xctx.WithRequestID(context.Background(), "req-1")
	require.NoError(t, err)
	logger.Info(ctx, "msg")
	assert.NotContains(t, buf.String(), "req-1")
}

func TestDynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New().SetOutput(&buf).SetLevelString("warn").Build()
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, logger.GetLevel())
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))

	child := logger.With(slog.String("component", "xkeylock"))
	child.Info(context.Background(), "dropped")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	child.Debug(context.Background(), "kept")
	assert.Contains(t, buf.String(), "component=xkeylock")
}

func TestBuilderErrors(t *testing.T) {
	_, _, err := New().SetLevelString("verbose").Build()
	assert.Error(t, err)

	_, _, err = New().SetFormat("xml").SetLevelString("verbose").Build()
	assert.ErrorContains(t, err, "unknown format")
}

func TestSetRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xsync.log")
	logger, cleanup, err := New().SetRotation(path).Build()
	require.NoError(t, err)

	logger.Error(context.Background(), "to file")
	require.NoError(t, cleanup())
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", LevelDebug, false},
		{" INFO ", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("debug")))
	assert.Equal(t, LevelDebug, l)
	assert.Equal(t, "DEBUG", l.String())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error(context.Background(), "nothing")
	l.With(slog.Int("n", 1)).Info(nil, "nothing") //nolint:staticcheck // nil ctx 容错
}
