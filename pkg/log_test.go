package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	orig := GetLogLevel()
	defer SetLogLevel(orig)

	SetLogLevel(slog.LevelDebug)
	if got := GetLogLevel(); got != slog.LevelDebug {
		t.Errorf("GetLogLevel() = %v, want %v", got, slog.LevelDebug)
	}

	SetLogLevel(slog.LevelError)
	if got := GetLogLevel(); got != slog.LevelError {
		t.Errorf("GetLogLevel() = %v, want %v", got, slog.LevelError)
	}
}

func TestLogComponent(t *testing.T) {
	orig := DefaultLogger
	defer SetLogger(orig)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogInfo(ComponentDispatcher, "test message", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "component=dispatcher") {
		t.Errorf("output missing component attribute: %q", out)
	}
	if !strings.Contains(out, "test message") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output missing attribute: %q", out)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	origLogger := DefaultLogger
	origLevel := GetLogLevel()
	defer func() {
		SetLogger(origLogger)
		SetLogLevel(origLevel)
	}()

	var buf bytes.Buffer
	SetLogLevel(slog.LevelWarn)
	SetLogSink(&buf)

	LogDebug(ComponentUnit, "should be filtered")
	LogWarn(ComponentUnit, "should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("debug message not filtered: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warning missing: %q", out)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger.Info("json test")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
}
