// Copyright 2020 azzy13. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// DefaultLogger instance
var DefaultLogger Logger = New(os.Stderr, LogLevelInfo)

const (
	// LogLevelAll .
	LogLevelAll = iota
	// LogLevelDebug .
	LogLevelDebug
	// LogLevelInfo .
	LogLevelInfo
	// LogLevelWarn .
	LogLevelWarn
	// LogLevelError .
	LogLevelError
	// LogLevelNone .
	LogLevelNone
)

var levelNames = map[string]int{
	"all":   LogLevelAll,
	"debug": LogLevelDebug,
	"info":  LogLevelInfo,
	"warn":  LogLevelWarn,
	"error": LogLevelError,
	"none":  LogLevelNone,
}

// Logger defines log interface
type Logger interface {
	SetLogLevel(lvl int)
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// SetLogger set default logger for mprpc
func SetLogger(l Logger) {
	DefaultLogger = l
}

// SetLogLevel .
func SetLogLevel(lvl int) {
	if DefaultLogger != nil {
		DefaultLogger.SetLogLevel(lvl)
	}
}

// ParseLevel maps a level name such as "debug" or "warn" to its LogLevel value.
func ParseLevel(name string) (int, error) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return LogLevelInfo, fmt.Errorf("invalid log level: %q", name)
	}
	return lvl, nil
}

// logger defines default logger
type logger struct {
	level int
	out   *log.Logger
}

// New returns a Logger writing to w.
func New(w io.Writer, lvl int) Logger {
	l := &logger{level: LogLevelInfo, out: log.New(w, "", log.LstdFlags)}
	l.SetLogLevel(lvl)
	return l
}

// SetLogLevel .
func (l *logger) SetLogLevel(lvl int) {
	switch lvl {
	case LogLevelAll, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone:
		l.level = lvl
	default:
		l.out.Printf("invalid log level: %v", lvl)
	}
}

// Debug .
func (l *logger) Debug(format string, v ...interface{}) {
	if LogLevelDebug >= l.level {
		l.out.Printf("[DBG] "+format, v...)
	}
}

// Info .
func (l *logger) Info(format string, v ...interface{}) {
	if LogLevelInfo >= l.level {
		l.out.Printf("[INF] "+format, v...)
	}
}

// Warn .
func (l *logger) Warn(format string, v ...interface{}) {
	if LogLevelWarn >= l.level {
		l.out.Printf("[WRN] "+format, v...)
	}
}

// Error .
func (l *logger) Error(format string, v ...interface{}) {
	if LogLevelError >= l.level {
		l.out.Printf("[ERR] "+format, v...)
	}
}

// Debug .
func Debug(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Debug(format, v...)
	}
}

// Info .
func Info(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Info(format, v...)
	}
}

// Warn .
func Warn(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Warn(format, v...)
	}
}

// Error .
func Error(format string, v ...interface{}) {
	if DefaultLogger != nil {
		DefaultLogger.Error(format, v...)
	}
}
