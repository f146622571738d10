// Package log provides a structured logging system for flodq components.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a textual level (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG", "Debug":
		return DebugLevel, nil
	case "info", "INFO", "Info", "":
		return InfoLevel, nil
	case "warn", "WARN", "Warn", "warning", "WARNING":
		return WarnLevel, nil
	case "error", "ERROR", "Error":
		return ErrorLevel, nil
	case "fatal", "FATAL", "Fatal":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys for propagating logging context
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
	QueueKey     = "queue"
)

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger defines the core logging interface for flodq components.
type Logger interface {
	// Field-based API
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// printf-style API
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	// With adds multiple fields to the logger.
	With(fields ...Field) Logger

	// WithContext adds request context values to the Logger.
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name.
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// core is shared by a logger and every child derived from it, so SetLevel on
// any of them applies to the whole tree.
type core struct {
	level      atomic.Int32
	formatter  Formatter
	outputs    []Output
	redactKeys []string
	sampleInit int
	sampleThen int
}

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	core       *core
	slogLogger *slog.Logger
}

// ContextExtractor extracts logging context from a context.Context.
func ContextExtractor(ctx context.Context) Fields {
	fields := Fields{}
	if ctx == nil {
		return fields
	}
	for _, k := range []string{RequestIDKey, ComponentKey, OperationKey, QueueKey} {
		if v := ctx.Value(ctxKey(k)); v != nil {
			fields[k] = v
		}
	}
	return fields
}

type ctxKey string

// ContextWith returns a child context carrying a logging value under one of the
// well-known keys understood by ContextExtractor.
func ContextWith(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, ctxKey(key), value)
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		core: &core{formatter: &JSONFormatter{}},
	}
	logger.core.level.Store(int32(InfoLevel))

	for _, option := range options {
		option(logger)
	}

	if len(logger.core.outputs) == 0 {
		logger.core.outputs = append(logger.core.outputs, NewConsoleOutput())
	}

	h := newBridgeHandler(logger.core).
		withRedactions(logger.core.redactKeys).
		withSampler(logger.core.sampleInit, logger.core.sampleThen)
	logger.slogLogger = slog.New(h)
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.core.level.Store(int32(level))
	}
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.core.formatter = formatter
	}
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.core.outputs = append(l.core.outputs, output)
	}
}

// WithRedaction replaces the value of the named keys with "[REDACTED]".
func WithRedaction(keys ...string) LoggerOption {
	return func(l *BaseLogger) {
		l.core.redactKeys = append(l.core.redactKeys, keys...)
	}
}

// WithSampling logs the first `initial` occurrences of a message and then
// every `thereafter`-th one.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) {
		l.core.sampleInit = initial
		l.core.sampleThen = thereafter
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(FatalLevel+1), WithOutput(&NullOutput{}))
}

func (l *BaseLogger) enabled(level Level) bool {
	return Level(l.core.level.Load()) <= level
}

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if !l.enabled(level) {
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, attrsFromFieldSlice(fields))
}

// The *f variants accept key/value pairs, not format verbs.

func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.log(FatalLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) child(attrs []slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return &BaseLogger{core: l.core, slogLogger: l.slogLogger.With(attrsToAny(attrs)...)}
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.child([]slog.Attr{slog.Any(key, value)})
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.child(attrsFromMap(fields))
}

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child([]slog.Attr{slog.String(errorKey, err.Error())})
}

func (l *BaseLogger) With(fields ...Field) Logger {
	return l.child(attrsFromFieldSlice(fields))
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(ContextExtractor(ctx))
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

func (l *BaseLogger) SetLevel(level Level) {
	l.core.level.Store(int32(level))
}

func (l *BaseLogger) GetLevel() Level {
	return Level(l.core.level.Load())
}

// Slog exposes the underlying slog.Logger for libraries that take one.
func (l *BaseLogger) Slog() *slog.Logger {
	return l.slogLogger
}
