package svga_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/bobuhiro11/gosvga/svga"
)

func TestLoggerDefaultSilent(t *testing.T) { //nolint:paralleltest
	l := svga.Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) { //nolint:paralleltest
	orig := svga.Logger()
	t.Cleanup(func() { svga.SetLogger(orig) })

	var buf bytes.Buffer

	svga.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	svga.Logger().Warn("shader rejected", "shid", 3)

	if !strings.Contains(buf.String(), "shader rejected") {
		t.Fatalf("log output %q does not contain message", buf.String())
	}

	svga.SetLogger(nil)

	if svga.Logger().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("SetLogger(nil) did not restore the silent logger")
	}
}
