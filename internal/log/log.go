// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
)

var traceEnabled bool

// Levels lists the accepted --log-level values, lowest first.
var Levels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// InitLogger sets up Apex with a custom handler and a log level from the
// AEGEA_LOG env variable. The level can be changed later with SetLevel once
// flags and config have been read.
func InitLogger() {
	log.SetHandler(&CustomHandler{Writer: os.Stderr})
	_ = SetLevel(os.Getenv("AEGEA_LOG"))
}

// SetLevel applies a named level. An empty name selects "warn". Unknown names
// return an error and leave the current level unchanged.
func SetLevel(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "warn"
	}
	var apexLevel log.Level
	switch name {
	case "trace", "debug":
		apexLevel = log.DebugLevel // Show debug and above for trace
	case "info":
		apexLevel = log.InfoLevel
	case "warn":
		apexLevel = log.WarnLevel
	case "error":
		apexLevel = log.ErrorLevel
	case "fatal":
		apexLevel = log.FatalLevel
	default:
		return fmt.Errorf("unknown log level %q, must be one of %v", name, Levels)
	}
	traceEnabled = name == "trace"
	log.SetLevel(apexLevel)
	return nil
}

// IsDebug reports whether debug (or trace) output is enabled. The top-level
// error handler uses it to decide between a full error dump and a summary.
func IsDebug() bool {
	if l, ok := log.Log.(*log.Logger); ok {
		return l.Level <= log.DebugLevel
	}
	return false
}

// CustomHandler formats log messages as single lines on Writer.
type CustomHandler struct {
	Writer io.Writer
}

// HandleLog implements the log.Handler interface
func (h *CustomHandler) HandleLog(e *log.Entry) error {
	w := h.Writer
	if w == nil {
		w = os.Stderr
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := e.Message
	level := "?"
	if strings.HasPrefix(message, "TRACE: ") {
		level = "T"
		message = message[7:]
	} else {
		switch e.Level {
		case log.DebugLevel:
			level = "D"
		case log.InfoLevel:
			level = "I"
		case log.WarnLevel:
			level = "W"
		case log.ErrorLevel:
			level = "E"
		case log.FatalLevel:
			level = "F"
		}
	}
	if err, ok := e.Fields["error"]; ok {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	fmt.Fprintf(w, "%s %s %s\n", timestamp, level, message)
	return nil
}

// Tracef logs at Trace level (below Debug).
func Tracef(format string, args ...interface{}) {
	if traceEnabled {
		log.Debug("TRACE: " + fmt.Sprintf(format, args...))
	}
}

// Debugf logs at Debug level.
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Infof logs at Info level.
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Errorf logs at Error level.
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Debug logs at Debug level.
func Debug(msg string) {
	log.Debug(msg)
}

// Warnf logs at Warn level.
func Warnf(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}

// WithError returns an entry with error.
func WithError(err error) *log.Entry {
	return log.WithError(err)
}
