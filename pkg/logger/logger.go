package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level       Level
	prefix      string
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New(level string) *Logger {
	return NewWithWriters(level, os.Stdout, os.Stderr)
}

// NewWithWriters builds a logger writing info/debug to out and warn/error to errOut.
func NewWithWriters(level string, out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	return &Logger{
		level:       ParseLevel(level),
		infoLogger:  log.New(out, "[INFO] ", flags),
		warnLogger:  log.New(errOut, "[WARN] ", flags),
		errorLogger: log.New(errOut, "[ERROR] ", flags),
		debugLogger: log.New(out, "[DEBUG] ", flags),
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return NewWithWriters("ERROR", io.Discard, io.Discard)
}

// With returns a child logger that tags every line with the component name.
func (l *Logger) With(component string) *Logger {
	child := *l
	child.prefix = l.prefix + component + ": "
	return &child
}

func (l *Logger) log(level Level, logger *log.Logger, format string, v ...interface{}) {
	if level >= l.level {
		logger.Output(3, l.prefix+fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, l.infoLogger, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, l.warnLogger, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, l.errorLogger, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, l.debugLogger, format, v...)
}
