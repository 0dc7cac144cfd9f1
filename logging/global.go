package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options controls how InitLogger builds the process logger.
type Options struct {
	Dir            string
	Env            string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
	Verbose        bool
}

type LoggingService struct {
	Logger *slog.Logger
	closer io.Closer
}

var (
	DefaultLoggingService *LoggingService
	mu                    sync.RWMutex
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitLogger installs the global logger: text on stdout at the console level
// and JSON into the weekly rotating file. If the file cannot be opened only
// console output is kept. The returned closer flushes the file.
func InitLogger(opts Options) io.Closer {
	consoleLevel := GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose)
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: consoleLevel}),
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		rl, err := NewRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "file logging disabled: %v\n", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(rl, &slog.HandlerOptions{Level: slog.LevelDebug}))
			closer = rl
		}
	}

	logger := slog.New(&multiHandler{handlers: handlers})

	mu.Lock()
	DefaultLoggingService = &LoggingService{Logger: logger, closer: closer}
	mu.Unlock()

	slog.SetDefault(logger)
	return closer
}

// parseLogLevel maps a level name to slog, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel returns the console level. An explicit level always
// wins; otherwise verbose gives debug, production and test are quieter.
func GetConsoleLogLevel(env, level string, verbose bool) slog.Level {
	if strings.TrimSpace(level) != "" {
		return parseLogLevel(level)
	}
	if verbose {
		return slog.LevelDebug
	}
	switch env {
	case "production":
		return slog.LevelWarn
	case "test":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return nil
	}
	return DefaultLoggingService.Logger
}

// Logger returns the global logger, or a stderr logger when InitLogger was not called.
func Logger() *slog.Logger {
	if l := current(); l != nil {
		return l
	}
	return fallback(slog.LevelDebug)
}

func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	if l := current(); l != nil {
		l.Info(msg, args...)
		return
	}
	fallback(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	if l := current(); l != nil {
		l.Error(msg, args...)
		return
	}
	fallback(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	if l := current(); l != nil {
		l.Warn(msg, args...)
		return
	}
	fallback(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	if l := current(); l != nil {
		l.Debug(msg, args...)
		return
	}
	fallback(slog.LevelDebug).Debug(msg, args...)
}
