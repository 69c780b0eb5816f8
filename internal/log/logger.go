// Package log provides the process-wide structured logger.
package log

import (
	"io"
	"os"
	"sync"
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

var (
	mu     sync.RWMutex
	logger Logger = mustDefault()
	output *MultiWriter
)

func mustDefault() Logger {
	l, err := New(&LoggerConfig{Level: "info"}, os.Stdout)
	if err != nil {
		panic(err)
	}
	return l
}

// GetLogger returns the process logger. Before Init it logs at info level
// to stdout.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger. Output always goes to stdout and, when
// enabled, to a rotating file.
func Init(cfg *LoggerConfig) error {
	w := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		w.AddFileAppender(cfg.File)
	}

	l, err := New(cfg, w)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := output
	logger, output = l, w
	mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Close flushes and closes file appenders installed by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if output == nil {
		return nil
	}
	err := output.Close()
	output = nil
	return err
}

// New builds a standalone logger writing to out.
func New(cfg *LoggerConfig, out io.Writer) (Logger, error) {
	return newLogrusAdapter(cfg, out)
}
