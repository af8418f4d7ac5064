package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var (
	_ Logger = (*DefaultLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
	_ Logger = (*fieldLogger)(nil)
)

// TestDefaultLogger_Format verifies the line layout
// Given: A DefaultLogger at debug level writing to a buffer
// When: A warning with plain, spaced and error fields is logged
// Then: The line holds the level, the message and logfmt fields with quoted values where needed
func TestDefaultLogger_Format(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	l := NewDefaultLoggerTo(&buf, LevelDebug)

	// Act
	l.Warn("failed to apply thread attributes",
		F("context", "du_ctrl"),
		F("workers", 2),
		F("error", errors.New("operation not permitted")),
		F("empty", ""),
	)

	// Assert
	line := buf.String()
	if !strings.HasPrefix(line, "execmgr ") {
		t.Errorf("line %q does not start with the prefix", line)
	}
	want := `WARN failed to apply thread attributes context=du_ctrl workers=2 error="operation not permitted" empty=""`
	if !strings.Contains(line, want) {
		t.Errorf("line = %q, want it to contain %q", line, want)
	}
}

// TestDefaultLogger_MinLevel verifies messages below the threshold are dropped
func TestDefaultLogger_MinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLoggerTo(&buf, LevelWarn)

	l.Debug("task rejected")
	l.Info("execution context added")
	l.Error("task panicked")

	out := buf.String()
	if strings.Contains(out, "task rejected") || strings.Contains(out, "context added") {
		t.Errorf("output has messages below WARN: %q", out)
	}
	if !strings.Contains(out, "ERROR task panicked") {
		t.Errorf("output = %q, want the error line", out)
	}
}

// TestDefaultLogger_With verifies bound fields precede call fields
func TestDefaultLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewDefaultLoggerTo(&buf, LevelInfo)
	l := base.With(F("context", "up"))

	l.Info("execution context stopped", F("tasks", 3))
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.HasSuffix(lines[0], "execution context stopped context=up tasks=3") {
		t.Errorf("line = %q", lines[0])
	}
	if strings.Contains(lines[1], "context=up") {
		t.Errorf("With leaked into the base logger: %q", lines[1])
	}
}

// TestWithFields verifies the wrapper prepends its fields to any Logger
// Given: A capturing logger wrapped twice with WithFields
// When: A message is logged through the outer wrapper
// Then: The inner logger sees the fields of both wrappers before the call fields
func TestWithFields(t *testing.T) {
	inner := &captureLogger{}
	l := WithFields(WithFields(inner, F("manager", "m-1")), F("context", "cell"))

	l.Warn("late task", F("tasks", 1))

	lines := inner.all()
	if len(lines) != 1 || lines[0] != "WARN late task manager=m-1 context=cell tasks=1" {
		t.Errorf("lines = %v", lines)
	}
	if WithFields(inner) != Logger(inner) {
		t.Error("WithFields without fields did not return the logger itself")
	}
}
