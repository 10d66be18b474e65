// Package logger provides structured logging for reldb.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with reldb-specific functionality.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "reldb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// PagerLogger returns a logger scoped to the pager component.
func (l *Logger) PagerLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "pager").Logger()}
}

// BTreeLogger returns a logger scoped to the btree component.
func (l *Logger) BTreeLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "btree").Logger()}
}

// RowStoreLogger returns a logger scoped to the row store component.
func (l *Logger) RowStoreLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "rowstore").Logger()}
}

// EngineLogger returns a logger scoped to the query engine component.
func (l *Logger) EngineLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "engine").Logger()}
}

// LogQuery logs completion of an executed query with structured fields.
func (l *Logger) LogQuery(kind string, duration time.Duration, rowCount int, err error) {
	event := l.zlog.Debug().
		Str("component", "engine").
		Str("kind", kind).
		Dur("duration_ms", duration).
		Int("row_count", rowCount)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "engine").
			Str("kind", kind).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("query completed")
}

// LogSplit logs a B+Tree node split.
func (l *Logger) LogSplit(pageIdx uint32, depth int) {
	l.zlog.Debug().
		Str("component", "btree").
		Uint32("page", pageIdx).
		Int("depth", depth).
		Msg("node split")
}

// LogCorruption logs a detected catalog or page corruption.
func (l *Logger) LogCorruption(component string, detail string) {
	l.zlog.Error().
		Str("component", component).
		Str("detail", detail).
		Msg("corruption detected")
}

// Global logger instance.
var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
