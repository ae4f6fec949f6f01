package svga

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by all gosvga packages. By default
// nothing is logged. Passing nil restores the silent default.
//
// Levels used:
//   - [slog.LevelDebug]: per-command detail (state slots written, transfers)
//   - [slog.LevelInfo]: lifecycle events (snapshot saved or loaded)
//   - [slog.LevelWarn]: guest errors (rejected shaders, dangling ids)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}

	loggerPtr.Store(l)
}

// Logger returns the current logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
