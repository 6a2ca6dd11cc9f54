package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	enabledMin slog.Level
	records    []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.enabledMin
}
func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler      { return h }

func TestLevelFilterHandlerDropsBelowMin(t *testing.T) {
	inner := &recordingHandler{enabledMin: slog.LevelDebug}
	h := &levelFilterHandler{min: slog.LevelInfo, inner: inner}

	require.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestLevelFilterHandlerDefersToInnerEnabled(t *testing.T) {
	inner := &recordingHandler{enabledMin: slog.LevelError}
	h := &levelFilterHandler{min: slog.LevelDebug, inner: inner}

	// min allows Info, but inner itself only wants Error+.
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestMultiHandlerFansOutToEnabledSinksOnly(t *testing.T) {
	console := &recordingHandler{enabledMin: slog.LevelInfo}
	errorsOnly := &recordingHandler{enabledMin: slog.LevelError}
	m := &multiHandler{handlers: []slog.Handler{console, errorsOnly}}

	rec := slog.NewRecord(time.Time{}, slog.LevelInfo, "hello", 0)
	require.NoError(t, m.Handle(context.Background(), rec))

	require.Len(t, console.records, 1)
	require.Len(t, errorsOnly.records, 0, "an info record must not reach the errors-only sink")
}

func TestMultiHandlerEnabledIfAnySinkWants(t *testing.T) {
	console := &recordingHandler{enabledMin: slog.LevelError}
	errorsOnly := &recordingHandler{enabledMin: slog.LevelError}
	m := &multiHandler{handlers: []slog.Handler{console, errorsOnly}}

	require.False(t, m.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, m.Enabled(context.Background(), slog.LevelError))
}

func TestSetupCreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	require.NoError(t, Setup(dir, false))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
