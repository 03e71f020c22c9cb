package logger_test

import (
	"bytes"
	"strings"
	"syscall"
	"testing"

	"github/sabouaram/httpengine/logger"
)

func TestNewWritesComponentField(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(buf, logger.DebugLevel, "chunk")
	l.Infof("hello %s", "world")

	if !strings.Contains(buf.String(), "component=chunk") {
		t.Fatalf("expected component field in output, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected message in output, got: %s", buf.String())
	}
}

func TestLogIOErrorLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(buf, logger.DebugLevel, "conn")

	logger.LogIOError(l, syscall.ECONNRESET, "reset on connection %d", 1)
	if !strings.Contains(buf.String(), "level=debug") {
		t.Fatalf("expected ECONNRESET logged at debug, got: %s", buf.String())
	}

	buf.Reset()
	logger.LogIOError(l, syscall.EACCES, "permission error")
	if !strings.Contains(buf.String(), "level=info") {
		t.Fatalf("expected generic error logged at info, got: %s", buf.String())
	}
}
