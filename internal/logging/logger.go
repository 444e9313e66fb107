// Package logging provides the leveled, printf-style logger used across cowork.
//
// Components depend on the Logger interface only. The default implementation
// writes colored level tags to stderr so diagnostics never mix with command
// output on stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level is a logging threshold.
type Level int

const (
	// LevelDebug enables every message.
	LevelDebug Level = iota
	// LevelInfo is the default threshold.
	LevelInfo
	// LevelWarn only shows warnings and errors.
	LevelWarn
	// LevelError only shows errors.
	LevelError
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	levelMu      sync.RWMutex
	defaultLevel = LevelInfo
	defaultOut   io.Writer = os.Stderr
)

// SetLevel sets the threshold used by loggers created with NewComponentLogger.
func SetLevel(level Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	defaultLevel = level
}

// SetOutput redirects loggers created with NewComponentLogger.
func SetOutput(w io.Writer) {
	levelMu.Lock()
	defer levelMu.Unlock()
	defaultOut = w
}

func currentSettings() (Level, io.Writer) {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return defaultLevel, defaultOut
}

// ComponentLogger writes leveled lines tagged with a component name.
type ComponentLogger struct {
	component string
	mu        sync.Mutex
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) *ComponentLogger {
	return &ComponentLogger{component: component}
}

var (
	debugTag = color.New(color.FgHiBlack).SprintFunc()
	infoTag  = color.New(color.FgCyan).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

func (l *ComponentLogger) log(level Level, tag string, format string, args ...any) {
	threshold, out := currentSettings()
	if level < threshold {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(out, "%s %s [%s] %s\n", time.Now().Format("15:04:05.000"), tag, l.component, msg)
}

// Debug logs at debug level.
func (l *ComponentLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, debugTag("DEBUG"), format, args...)
}

// Info logs at info level.
func (l *ComponentLogger) Info(format string, args ...any) {
	l.log(LevelInfo, infoTag("INFO "), format, args...)
}

// Warn logs at warn level.
func (l *ComponentLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, warnTag("WARN "), format, args...)
}

// Error logs at error level.
func (l *ComponentLogger) Error(format string, args ...any) {
	l.log(LevelError, errorTag("ERROR"), format, args...)
}
