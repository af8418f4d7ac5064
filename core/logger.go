package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// Logger is the structured logging interface used by workers, strands and the
// execution manager. The logging package adapts a zap.Logger to it.
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogLevel orders log messages by severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// DefaultLogger writes one logfmt-style line per message through the
// standard log package:
//
//	execmgr 2026/01/02 15:04:05.000000 WARN failed to apply thread attributes context=du_ctrl thread=du_ctrl error="operation not permitted"
//
// Messages below the minimum level are dropped. Debug is off by default
// because rejections are reported at that level on the submission path.
type DefaultLogger struct {
	out    *log.Logger
	min    LogLevel
	fields []Field
}

// NewDefaultLogger creates a DefaultLogger writing Info and above to stderr.
func NewDefaultLogger() *DefaultLogger {
	return NewDefaultLoggerTo(os.Stderr, LevelInfo)
}

// NewDefaultLoggerTo creates a DefaultLogger writing messages at min or
// above to w.
func NewDefaultLoggerTo(w io.Writer, min LogLevel) *DefaultLogger {
	return &DefaultLogger{
		out: log.New(w, "execmgr ", log.LstdFlags|log.Lmicroseconds),
		min: min,
	}
}

// With returns a logger that appends fields to every message.
func (l *DefaultLogger) With(fields ...Field) *DefaultLogger {
	c := *l
	c.fields = append(append([]Field(nil), l.fields...), fields...)
	return &c
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields)
}

func (l *DefaultLogger) log(level LogLevel, msg string, fields []Field) {
	if level < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	writeFields(&b, l.fields)
	writeFields(&b, fields)
	l.out.Output(3, b.String())
}

func writeFields(b *strings.Builder, fields []Field) {
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		v := fmt.Sprint(f.Value)
		if v == "" || strings.ContainsAny(v, " \t\n\"=") {
			v = strconv.Quote(v)
		}
		b.WriteString(v)
	}
}

// WithFields returns a Logger that adds fields to every message logged
// through it.
func WithFields(l Logger, fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{inner: fl.inner, fields: append(append([]Field(nil), fl.fields...), fields...)}
	}
	return &fieldLogger{inner: l, fields: fields}
}

type fieldLogger struct {
	inner  Logger
	fields []Field
}

func (l *fieldLogger) with(fields []Field) []Field {
	return append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
}

func (l *fieldLogger) Debug(msg string, fields ...Field) { l.inner.Debug(msg, l.with(fields)...) }
func (l *fieldLogger) Info(msg string, fields ...Field)  { l.inner.Info(msg, l.with(fields)...) }
func (l *fieldLogger) Warn(msg string, fields ...Field)  { l.inner.Warn(msg, l.with(fields)...) }
func (l *fieldLogger) Error(msg string, fields ...Field) { l.inner.Error(msg, l.with(fields)...) }

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
