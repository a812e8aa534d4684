package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormattedLoggerIncludesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFormattedLogger(&buf)

	logger.Info("thread terminated", "id", 3, "code", -1)

	out := buf.String()
	if !strings.Contains(out, "MESSAGE") || !strings.Contains(out, "thread terminated") {
		t.Fatalf("output missing message: %q", out)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "3") {
		t.Fatalf("output missing id attr: %q", out)
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Level.Set(Warn)
	defer Level.Set(Info)

	logger := NewFormattedLogger(&buf)
	logger.Info("should be suppressed")

	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}
}
