// Package log provides flodq's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that feeds a formatter/outputs
// pipeline, so every component produces the same line shape whether it logs
// through the facade or through a library that only knows *slog.Logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("poll"), log.Queue("orders"))
//	l.Info("ticket fulfilled", log.Int("waiters", 3))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config: JSON or text
// formatting, console/file/null outputs, key redaction and per-message
// sampling.
//
// # Interop
//
// RedirectStdLog routes the standard library logger (Pebble writes through
// it) into a facade logger; ToStdLogger does the same for a single consumer.
// (*BaseLogger).Slog exposes the bridged *slog.Logger.
package log
