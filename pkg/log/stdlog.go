package log

import (
	"bytes"
	stdlog "log"
)

// stdWriter adapts a Logger to io.Writer, one entry per line.
type stdWriter struct {
	logger Logger
	level  Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\r\n"))
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that forwards to logger at level.
func ToStdLogger(logger Logger, level Level) *stdlog.Logger {
	return stdlog.New(&stdWriter{logger: logger, level: level}, "", 0)
}

// RedirectStdLog routes the standard library's default logger (used by
// Pebble and net/http) into logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(&stdWriter{logger: logger.WithComponent("stdlib"), level: InfoLevel})
}
