// Package logging wires the three sinks described in spec §6: a colorized
// console handler, an info+ output.log file, and an error+ errors.log
// file, both rotated via lumberjack since the bot runs unattended.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	colorable "github.com/mattn/go-colorable"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs the three-sink root logger. dir is the directory holding
// output.log and errors.log; it is created if missing.
func Setup(dir string, verbose bool) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	consoleLevel := slog.LevelInfo
	if verbose {
		consoleLevel = log.LevelDebug
	}

	console := &levelFilterHandler{min: consoleLevel, inner: log.NewTerminalHandler(colorable.NewColorableStdout(), true)}

	outputWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "output.log"),
		MaxSize:    25,
		MaxBackups: 5,
		Compress:   true,
	}
	errorsWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "errors.log"),
		MaxSize:    25,
		MaxBackups: 5,
		Compress:   true,
	}

	output := &levelFilterHandler{min: slog.LevelInfo, inner: log.NewTerminalHandler(outputWriter, false)}
	errorsOnly := &levelFilterHandler{min: slog.LevelError, inner: log.NewTerminalHandler(errorsWriter, false)}

	multi := &multiHandler{handlers: []slog.Handler{console, output, errorsOnly}}
	log.SetDefault(log.NewLogger(multi))

	return nil
}

// levelFilterHandler drops records below min before delegating.
type levelFilterHandler struct {
	min   slog.Level
	inner slog.Handler
}

func (h *levelFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.inner.Enabled(ctx, level)
}

func (h *levelFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelFilterHandler{min: h.min, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelFilterHandler) WithGroup(name string) slog.Handler {
	return &levelFilterHandler{min: h.min, inner: h.inner.WithGroup(name)}
}

// multiHandler fans a record out to every sink that wants it.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, d := range h.handlers {
		if d.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, d := range h.handlers {
		if !d.Enabled(ctx, r.Level) {
			continue
		}
		if err := d.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, d := range h.handlers {
		next[i] = d.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, d := range h.handlers {
		next[i] = d.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
