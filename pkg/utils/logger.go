package utils

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger is a leveled printf-style logger. A component name, when set,
// is printed after the level tag.
type Logger struct {
	level     LogLevel
	component string
	logger    *log.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

func init() {
	defaultLogger = NewLogger("info")
}

// ParseLevel maps a config string to a level. Unknown values mean INFO.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Stdout)
}

// NewLoggerWithWriter is NewLogger with an explicit destination.
func NewLoggerWithWriter(levelStr string, w io.Writer) *Logger {
	return &Logger{
		level:  ParseLevel(levelStr),
		logger: log.New(w, "", log.LstdFlags),
	}
}

// Named returns a logger sharing the output and level of l that tags every
// line with component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		level:     l.level,
		component: component,
		logger:    l.logger,
	}
}

func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) printf(level LogLevel, format string, v ...interface{}) {
	if l.level > level {
		return
	}
	prefix := "[" + level.String() + "] "
	if l.component != "" {
		prefix += "[" + l.component + "] "
	}
	l.logger.Printf(prefix+format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.printf(DEBUG, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.printf(INFO, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.printf(WARN, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.printf(ERROR, format, v...)
}

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger, typically once at startup.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Global logging functions
func LogDebug(msg string) {
	Default().Debug("%s", msg)
}

func LogInfo(msg string) {
	Default().Info("%s", msg)
}

func LogWarn(msg string) {
	Default().Warn("%s", msg)
}

func LogError(msg string) {
	Default().Error("%s", msg)
}
