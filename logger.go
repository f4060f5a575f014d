package objproxy

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// LogLevel specifies the level of spew that should go to the log.
type LogLevel int

const (
	// LogLevelUnknown is a default value for LogLevel. Its behavior is
	// undefined.
	LogLevelUnknown LogLevel = iota

	// LogLevelPanic causes output of a message followed by a panic.
	LogLevelPanic

	// LogLevelFatal causes output of a message followed by os.Exit(1).
	LogLevelFatal

	// LogLevelError is for unexpected error messages.
	LogLevelError

	// LogLevelWarning is for warning messages.
	LogLevelWarning

	// LogLevelInfo is for informational messages.
	LogLevelInfo

	// LogLevelDebug is for debug messages.
	LogLevelDebug

	// LogLevelTrace is for trace messages.
	LogLevelTrace
)

// Logger is the leveled, prefix-forking logging interface used
// throughout objproxy: every component logs through the handful of
// methods actually needed to narrate opcode dispatch and teardown.
type Logger interface {
	// DLogf outputs a formatted message iff DEBUG logging is enabled.
	DLogf(f string, args ...interface{})

	// Errorf returns an error object whose message carries this
	// logger's prefix.
	Errorf(f string, args ...interface{}) error

	// Panic logs args and then panics, regardless of level.
	Panic(args ...interface{})

	// Fork creates a new Logger with a formatted suffix appended onto
	// this logger's prefix (with ": " added between).
	Fork(prefix string, args ...interface{}) Logger
}

// BasicLogger is a logical log output stream with a level filter and a
// prefix prepended to each record.
type BasicLogger struct {
	prefix   string
	prefixC  string
	logger   *log.Logger
	logLevel LogLevel
}

const defaultLogFlags = log.Ldate | log.Ltime

// NewLogger creates a new Logger with the given prefix and level,
// emitting output to os.Stderr.
func NewLogger(prefix string, logLevel LogLevel) Logger {
	prefixC := prefix
	if prefixC != "" {
		prefixC += ": "
	}
	return &BasicLogger{
		prefix:   prefix,
		prefixC:  prefixC,
		logger:   log.New(os.Stderr, "", defaultLogFlags),
		logLevel: logLevel,
	}
}

func (l *BasicLogger) sprintf(f string, args ...interface{}) string {
	return l.prefixC + fmt.Sprintf(f, args...)
}

// DLogf outputs a formatted message if this logger's level is DEBUG or
// more verbose.
func (l *BasicLogger) DLogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelDebug {
		l.logger.Print(l.sprintf(f, args...))
	}
}

// Errorf returns an error object with a description string that has
// this logger's prefix.
func (l *BasicLogger) Errorf(f string, args ...interface{}) error {
	return errors.New(l.sprintf(f, args...))
}

// Panic logs args at PANIC level and then panics.
func (l *BasicLogger) Panic(args ...interface{}) {
	msg := l.prefixC + fmt.Sprint(args...)
	l.logger.Print(msg)
	panic(msg)
}

// Fork creates a new Logger that has an additional formatted string
// appended onto this logger's prefix (with ": " added between).
func (l *BasicLogger) Fork(prefix string, args ...interface{}) Logger {
	args = append([]interface{}{l.prefix}, args...)
	newPrefix := fmt.Sprintf("%s: "+prefix, args...)
	return NewLogger(newPrefix, l.logLevel)
}
