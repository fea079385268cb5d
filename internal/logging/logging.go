// Package logging provides the leveled logger used across the servo. Output
// goes to console and/or a size-rotated file; the level can be raised at
// runtime by the verbose command.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
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

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Config struct {
	Console    bool   `yaml:"console"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Level      string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Console:    true,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Level:      "INFO",
	}
}

type Logger struct {
	mu    sync.Mutex
	min   Level
	out   io.Writer
	roll  *lumberjack.Logger
	clock func() time.Time
}

// New builds a logger from config. A filename enables rotated file output;
// console and file can be active together.
func New(cfg Config) *Logger {
	l := &Logger{
		min:   ParseLevel(cfg.Level),
		clock: time.Now,
	}
	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.Filename != "" {
		l.roll = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, l.roll)
	}
	switch len(writers) {
	case 0:
		l.out = io.Discard
	case 1:
		l.out = writers[0]
	default:
		l.out = io.MultiWriter(writers...)
	}
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return &Logger{min: ERROR + 1, out: io.Discard, clock: time.Now}
}

func (l *Logger) Close() error {
	if l.roll != nil {
		return l.roll.Close()
	}
	return nil
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.min = level
	l.mu.Unlock()
}

func (l *Logger) LevelEnabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.min
}

func (l *Logger) logf(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.min {
		return
	}
	ts := l.clock().Format(time.RFC3339Nano)
	fmt.Fprintf(l.out, "%s [%-5s] %s\n", ts, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Tracef(format string, args ...any) { l.logf(TRACE, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(ERROR, format, args...) }
