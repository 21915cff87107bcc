// Package log wraps logrus behind a small Logger interface with pattern
// formatting and pluggable appenders.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

const (
	DefaultPattern = "%time [%level] %msg %field\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

var (
	mu      sync.RWMutex
	logger  Logger
	writers *MultiWriter
)

func init() {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: DefaultPattern, time: DefaultTime})
	l.SetOutput(os.Stdout)
	logger = &logrusAdapter{entry: logrus.NewEntry(l)}
}

// GetLogger returns the process logger. Before Init it logs to stdout at info level.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func setLogger(l Logger, w *MultiWriter) {
	mu.Lock()
	old := writers
	logger, writers = l, w
	mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Flush closes file appenders of the current logger.
func Flush() {
	mu.Lock()
	w := writers
	writers = nil
	mu.Unlock()
	if w != nil {
		w.Close()
	}
}
