package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a structured logger with log levels
type Logger struct {
	level  *slog.LevelVar
	format string
	logger *slog.Logger
	mu     sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func newLogger(w io.Writer, level LogLevel, format string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		format = "json"
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{level: lv, format: format, logger: slog.New(h)}
}

// Init initializes the default logger with the specified log level and
// output format ("json" or "text"). Only the first call has an effect.
func Init(level LogLevel, format string) {
	once.Do(func() {
		defaultLogger = newLogger(os.Stdout, level, format)
	})
}

func get() *Logger {
	Init(INFO, "json")
	return defaultLogger
}

// SetOutput redirects the default logger, keeping its level and format
func SetOutput(w io.Writer) {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	opts := &slog.HandlerOptions{Level: l.level}
	if l.format == "text" {
		l.logger = slog.New(slog.NewTextHandler(w, opts))
	} else {
		l.logger = slog.New(slog.NewJSONHandler(w, opts))
	}
}

// SetLevel sets the log level for the default logger
func SetLevel(level LogLevel) {
	get().level.Set(level.slogLevel())
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	switch get().level.Level() {
	case slog.LevelDebug:
		return DEBUG
	case slog.LevelWarn:
		return WARN
	case slog.LevelError:
		return ERROR
	default:
		return INFO
	}
}

// log writes a log message if the level is enabled
func (l *Logger) log(level LogLevel, fields map[string]interface{}, msg string) {
	l.mu.RLock()
	lg := l.logger
	l.mu.RUnlock()

	ctx := context.Background()
	if !lg.Enabled(ctx, level.slogLevel()) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	lg.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	get().log(DEBUG, nil, fmt.Sprintf(format, args...))
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	get().log(INFO, nil, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	get().log(WARN, nil, fmt.Sprintf(format, args...))
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	get().log(ERROR, nil, fmt.Sprintf(format, args...))
}

// DebugWithFields logs a debug message with structured fields
func DebugWithFields(fields map[string]interface{}, msg string) {
	get().log(DEBUG, fields, msg)
}

// InfoWithFields logs an info message with structured fields
func InfoWithFields(fields map[string]interface{}, msg string) {
	get().log(INFO, fields, msg)
}

// WarnWithFields logs a warning message with structured fields
func WarnWithFields(fields map[string]interface{}, msg string) {
	get().log(WARN, fields, msg)
}

// ErrorWithFields logs an error message with structured fields
func ErrorWithFields(fields map[string]interface{}, msg string) {
	get().log(ERROR, fields, msg)
}

// Debugf is an alias for Debug
func Debugf(format string, args ...interface{}) {
	Debug(format, args...)
}

// Infof is an alias for Info
func Infof(format string, args ...interface{}) {
	Info(format, args...)
}

// Warnf is an alias for Warn
func Warnf(format string, args ...interface{}) {
	Warn(format, args...)
}

// Errorf is an alias for Error
func Errorf(format string, args ...interface{}) {
	Error(format, args...)
}
