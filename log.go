package main

import (
	"fmt"
	"log"
	"os"
	"time"
)

// logLevel orders log messages by importance. Lower is more important.
type logLevel int

const (
	levelCritical logLevel = iota
	levelError
	levelWarning
	levelInfo
	levelDebug
	levelTrace
)

func (l logLevel) String() string {
	switch l {
	case levelCritical:
		return "CRITICAL"
	case levelError:
		return "ERROR"
	case levelWarning:
		return "WARN"
	case levelInfo:
		return "INFO"
	case levelDebug:
		return "DEBUG"
	case levelTrace:
		return "TRACE"
	}
	return "UNKNOWN"
}

var logger = log.New(os.Stderr, "", 0)

// Verbosity for the whole process. main sets it from the command line before
// any other goroutine starts.
var logVerbosity = levelInfo

// serverLog writes a log message outside the context of any one connection.
func serverLog(level logLevel, format string, args ...interface{}) {
	logMessage(level, "", format, args...)
}

// connLog writes a log message about one connection, tagging the line with
// the connection's identity.
func connLog(level logLevel, conn fmt.Stringer, format string,
	args ...interface{}) {
	logMessage(level, conn.String(), format, args...)
}

func logMessage(level logLevel, prefix, format string, args ...interface{}) {
	if level > logVerbosity {
		return
	}

	if len(prefix) > 0 {
		prefix = " " + prefix
	}

	logger.Printf("[%s] %s%s -- %s", time.Now().Format("2006-01-02 15:04:05"),
		level, prefix, fmt.Sprintf(format, args...))
}

// serverFatal logs at CRITICAL and exits.
func serverFatal(format string, args ...interface{}) {
	serverLog(levelCritical, format, args...)
	os.Exit(1)
}
