// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package log is a thin layer over the go-ethereum logger. Package level loggers
// created by WithContext resolve the root handler lazily, so they may be declared
// before Init runs.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Log levels.
const (
	LevelTrace = ethlog.LevelTrace
	LevelDebug = ethlog.LevelDebug
	LevelInfo  = ethlog.LevelInfo
	LevelWarn  = ethlog.LevelWarn
	LevelError = ethlog.LevelError
	LevelCrit  = ethlog.LevelCrit
)

// Logger writes key/value pairs.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type lazyLogger struct {
	ctx []any
}

// WithContext returns a logger carrying ctx that always writes through the current root.
func WithContext(ctx ...any) Logger {
	return &lazyLogger{ctx: ctx}
}

func (l *lazyLogger) root() ethlog.Logger { return ethlog.Root().With(l.ctx...) }

func (l *lazyLogger) Trace(msg string, ctx ...any) { l.root().Trace(msg, ctx...) }
func (l *lazyLogger) Debug(msg string, ctx ...any) { l.root().Debug(msg, ctx...) }
func (l *lazyLogger) Info(msg string, ctx ...any)  { l.root().Info(msg, ctx...) }
func (l *lazyLogger) Warn(msg string, ctx ...any)  { l.root().Warn(msg, ctx...) }
func (l *lazyLogger) Error(msg string, ctx ...any) { l.root().Error(msg, ctx...) }
func (l *lazyLogger) Crit(msg string, ctx ...any)  { l.root().Crit(msg, ctx...) }

func (l *lazyLogger) With(ctx ...any) Logger {
	return &lazyLogger{ctx: append(append([]any(nil), l.ctx...), ctx...)}
}

var (
	mu      sync.Mutex
	glog    *ethlog.GlogHandler
	current = LevelInfo
)

// Init installs the root handler writing to w. Terminal output is colored when w is a tty.
func Init(w io.Writer, level slog.Level, json bool) {
	var handler slog.Handler
	if json {
		handler = ethlog.JSONHandler(w)
	} else {
		useColor := false
		if f, ok := w.(*os.File); ok {
			useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
		handler = ethlog.NewTerminalHandler(w, useColor)
	}

	mu.Lock()
	defer mu.Unlock()
	glog = ethlog.NewGlogHandler(handler)
	glog.Verbosity(level)
	current = level
	ethlog.SetDefault(ethlog.NewLogger(glog))
}

// Discard silences the root logger.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	glog = nil
	ethlog.SetDefault(ethlog.NewLogger(ethlog.DiscardHandler()))
}

// Level returns the current verbosity.
func Level() slog.Level {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// SetLevel changes the verbosity of the handler installed by Init.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	current = level
	if glog != nil {
		glog.Verbosity(level)
	}
}

// ParseLevel accepts trace, debug, info, warn, error and crit.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "crit":
		return LevelCrit, nil
	}
	return 0, errors.Errorf("unknown log level %q", s)
}

// LevelName is the inverse of ParseLevel.
func LevelName(level slog.Level) string {
	switch {
	case level <= LevelTrace:
		return "trace"
	case level <= LevelDebug:
		return "debug"
	case level <= LevelInfo:
		return "info"
	case level <= LevelWarn:
		return "warn"
	case level <= LevelError:
		return "error"
	default:
		return "crit"
	}
}

// FromVerbosity maps the legacy 0..5 verbosity flag to a level.
func FromVerbosity(v int) slog.Level {
	return ethlog.FromLegacyLevel(v)
}
