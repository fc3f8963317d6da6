package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu           sync.RWMutex
	log          *slog.Logger
	logWriter    *lumberjack.Logger // set when logging to a file
	debugEnabled bool
)

// Options controls where and how much is logged
type Options struct {
	// Level is one of debug, info, warn or error
	Level string
	// File enables JSON logging to a rotating file instead of Stderr
	File string
	// Stderr receives text logs when File is empty; defaults to os.Stderr
	Stderr io.Writer
}

// ParseLevel maps a level name to its slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Init installs the global logger
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.File != "" {
		logWriter = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		handler = slog.NewJSONHandler(logWriter, handlerOpts)
	} else {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	log = slog.New(handler)
	debugEnabled = level == slog.LevelDebug
	return nil
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}

// Get returns the global logger, or a warn-level stderr logger if Init
// was never called
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// IsDebug returns whether debug logging is enabled
func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugEnabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// With creates a new logger with additional attributes
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
