// Package logger provides leveled logging on top of the standard log package.
// Every emitted line can also be mirrored to a sink (the in-memory event log).
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/eventlog"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	NOTICE
	WARN
	ERROR
	FATAL
)

var (
	mu           sync.RWMutex
	currentLevel Level = INFO
	sink         func(eventlog.Entry)
	now          = time.Now
)

// SetLevel sets the minimum level that is emitted. Unknown names select INFO.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = ParseLevel(level)
}

// ParseLevel converts a level name to a Level.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "NOTICE":
		return NOTICE
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetSink registers a function receiving every emitted line. nil disables it.
func SetSink(fn func(eventlog.Entry)) {
	mu.Lock()
	defer mu.Unlock()
	sink = fn
}

func output(level Level, prefix string, msg string) {
	mu.RLock()
	lvl, s := currentLevel, sink
	mu.RUnlock()

	if lvl > level {
		return
	}
	log.Printf("[%s] %s", prefix, msg)
	if s != nil {
		s(eventlog.Entry{Time: now(), Level: prefix, Message: msg})
	}
}

func Debugf(format string, v ...interface{}) {
	output(DEBUG, "DEBUG", fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	output(INFO, "INFO", fmt.Sprintf(format, v...))
}

func Noticef(format string, v ...interface{}) {
	output(NOTICE, "NOTICE", fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	output(WARN, "WARN", fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	output(ERROR, "ERROR", fmt.Sprintf(format, v...))
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
