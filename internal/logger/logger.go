package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level orders log lines by severity. LevelNone silences a sink.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelNone:  "NONE",
}

func (l Level) String() string {
	if l < LevelDebug || l > LevelNone {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts level names in any case plus "warning". Anything else
// means LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for level, name := range levelNames {
		if name == s {
			return Level(level)
		}
	}
	return LevelInfo
}

// Options configures a Logger.
type Options struct {
	// Level is the threshold for the log file.
	Level Level
	// Path is the log file. Empty disables file output.
	Path string
	// Console receives a copy of every line at or above ConsoleLevel.
	// Nil disables console output.
	Console      io.Writer
	ConsoleLevel Level
	Prefix       string
}

// sink is shared between a logger and the children created by WithPrefix.
type sink struct {
	mu           sync.Mutex
	level        Level
	file         *os.File
	fileLog      *log.Logger
	console      *log.Logger
	consoleLevel Level
}

// Logger writes leveled, prefixed lines to a log file and optionally a console.
type Logger struct {
	sink   *sink
	prefix string
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

// Init initializes the global logger. Calling it again replaces the previous
// global logger and closes its file.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// New creates a new Logger instance
func New(opts Options) (*Logger, error) {
	s := &sink{
		level:        opts.Level,
		consoleLevel: opts.ConsoleLevel,
	}

	if opts.Path != "" && opts.Level != LevelNone {
		logDir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.file = file
		s.fileLog = log.New(file, "", 0)
	}

	if opts.Console != nil && opts.ConsoleLevel != LevelNone {
		s.console = log.New(opts.Console, "", 0)
	}

	return &Logger{sink: s, prefix: opts.Prefix}, nil
}

// Global returns the global logger instance
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		// Discard everything until Init is called
		globalLogger = &Logger{sink: &sink{level: LevelNone, consoleLevel: LevelNone}}
	}
	return globalLogger
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ":" + prefix
	}
	return &Logger{sink: l.sink, prefix: newPrefix}
}

// SetLevel sets the file logging level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// GetLevel returns the current file logging level
func (l *Logger) GetLevel() Level {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	toFile := s.fileLog != nil && level >= s.level && s.level != LevelNone
	toConsole := s.console != nil && level >= s.consoleLevel
	if !toFile && !toConsole {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	logLine := fmt.Sprintf("%s [%s] %s%s", timestamp, level.String(), prefix, msg)
	if toFile {
		s.fileLog.Println(logLine)
	}
	if toConsole {
		s.console.Println(logLine)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Close closes the underlying log file
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		l.sink.fileLog = nil
		return err
	}
	return nil
}

// Package-level shorthands for the global logger.

func Debug(format string, args ...interface{}) { Global().Debug(format, args...) }
func Info(format string, args ...interface{})  { Global().Info(format, args...) }
func Warn(format string, args ...interface{})  { Global().Warn(format, args...) }
func Error(format string, args ...interface{}) { Global().Error(format, args...) }

// Named returns a child of the global logger resolved at call time, so
// package-level loggers pick up a later Init.
func Named(prefix string) *Lazy {
	return &Lazy{prefix: prefix}
}

// Lazy is a prefixed view on whatever the global logger is when it is used.
type Lazy struct {
	prefix string
}

func (n *Lazy) get() *Logger { return Global().WithPrefix(n.prefix) }

func (n *Lazy) Debug(format string, args ...interface{}) { n.get().Debug(format, args...) }
func (n *Lazy) Info(format string, args ...interface{})  { n.get().Info(format, args...) }
func (n *Lazy) Warn(format string, args ...interface{})  { n.get().Warn(format, args...) }
func (n *Lazy) Error(format string, args ...interface{}) { n.get().Error(format, args...) }
