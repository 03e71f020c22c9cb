package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github/sabouaram/httpengine/logger"
)

func TestLoggerWriteAppearsAsInfoEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(buf, logger.DebugLevel, "cli")

	w, ok := l.(interface {
		Write(p []byte) (int, error)
	})
	if !ok {
		t.Fatalf("expected Logger to implement io.Writer for jwalterweatherman bridging")
	}
	if _, err := w.Write([]byte("hello from cobra\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !strings.Contains(buf.String(), "hello from cobra") {
		t.Fatalf("expected line routed through logger, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "component=cli") {
		t.Fatalf("expected component field preserved, got: %s", buf.String())
	}
}

func TestSetSPF13LevelDoesNotPanicForAnyLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(buf, logger.DebugLevel, "cli")

	for _, lvl := range []logger.Level{
		logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel, logger.FatalLevel,
	} {
		logger.SetSPF13Level(l, lvl)
	}
}
