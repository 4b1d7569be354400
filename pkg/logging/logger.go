// Package logging provides the key/value logger shared by the glimt packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message
type Level int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug Level = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
)

// String returns the string representation of the log level
func (l Level) String() string {
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
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name such as "debug" or "WARN" to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is the interface for logging operations
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	// With returns a new logger with additional key-value pairs
	With(keyvals ...any) Logger
}

// textLogger writes one line per message. Loggers derived through With
// share the parent's writer lock.
type textLogger struct {
	mu       *sync.Mutex
	writer   io.Writer
	minLevel Level
	keyvals  []any
	now      func() time.Time
}

// New creates a logger that writes to the given writer
func New(writer io.Writer, minLevel Level) Logger {
	return &textLogger{
		mu:       &sync.Mutex{},
		writer:   writer,
		minLevel: minLevel,
		now:      time.Now,
	}
}

// NewStderr creates a logger that writes to os.Stderr
func NewStderr(minLevel Level) Logger {
	return New(os.Stderr, minLevel)
}

func (l *textLogger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals) }
func (l *textLogger) Info(msg string, keyvals ...any) { l.log(LevelInfo, msg, keyvals) }
func (l *textLogger) Warn(msg string, keyvals ...any) { l.log(LevelWarn, msg, keyvals) }
func (l *textLogger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals) }

func (l *textLogger) With(keyvals ...any) Logger {
	merged := make([]any, 0, len(l.keyvals)+len(keyvals))
	merged = append(merged, l.keyvals...)
	merged = append(merged, keyvals...)
	return &textLogger{
		mu:       l.mu,
		writer:   l.writer,
		minLevel: l.minLevel,
		keyvals:  merged,
		now:      l.now,
	}
}

func (l *textLogger) log(level Level, msg string, keyvals []any) {
	if level < l.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(l.now().Format("2006-01-02 15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	writeKeyvals(&b, l.keyvals)
	writeKeyvals(&b, keyvals)
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.writer, b.String())
}

func writeKeyvals(b *strings.Builder, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		fmt.Fprintf(b, " %v=MISSING", keyvals[len(keyvals)-1])
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }

// Nop returns a logger that discards all messages
func Nop() Logger {
	return nopLogger{}
}
