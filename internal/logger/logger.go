// Package logger provides structured logging for the engine. The API is a
// thin veneer over zerolog: callers attach a LogFields map to each message
// and the backend renders one JSON object per line.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"example.com/muxstream/v2/internal/config"
)

// LogFields carries the structured key/value pairs attached to a log entry.
type LogFields map[string]interface{}

// Logger emits structured log entries at the configured level.
type Logger struct {
	zl     zerolog.Logger
	closer io.Closer // non-nil when the target is a file we opened
}

// NewLogger creates a Logger from the logging configuration. File targets
// are opened in append mode; "stdout" and "stderr" use the process streams.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		cfg = &config.LoggingConfig{LogLevel: config.LogLevelInfo, Target: "stderr"}
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	switch {
	case cfg.Target == "stdout":
		out = os.Stdout
	case cfg.Target == "stderr" || cfg.Target == "":
		out = os.Stderr
	case config.IsFilePath(cfg.Target):
		f, err := os.OpenFile(cfg.Target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = f
		closer = f
	}

	zl := zerolog.New(out).Level(zerologLevel(cfg.LogLevel)).With().Timestamp().Logger()
	return &Logger{zl: zl, closer: closer}, nil
}

// NewDiscardLogger returns a Logger that drops everything. Useful when a
// component requires a non-nil logger but the caller has none to give.
func NewDiscardLogger() *Logger {
	return &Logger{zl: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

// NewTestLogger returns a debug-level Logger writing to w.
func NewTestLogger(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).Level(zerolog.DebugLevel)}
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelInfo:
		return zerolog.InfoLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields LogFields) {
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	ev.Msg(msg)
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, fields LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Debug(), msg, fields)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, fields LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Info(), msg, fields)
}

// Warn logs a message at WARNING level.
func (l *Logger) Warn(msg string, fields LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Warn(), msg, fields)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, fields LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Error(), msg, fields)
}

// CloseLogFiles closes any file target opened by NewLogger.
// It is safe to call on loggers bound to stdout/stderr.
func (l *Logger) CloseLogFiles() error {
	if l == nil || l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
