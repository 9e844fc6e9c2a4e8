package wlserver

import "fmt"

// LogImportance is the verbosity of a server log message. Hosts bridge the
// messages into their own logger with OnLog.
type LogImportance int

const (
	LogImportanceSilent LogImportance = iota
	LogImportanceError
	LogImportanceInfo
	LogImportanceDebug
)

var (
	logVerbosity = LogImportanceError
	logCallback  func(LogImportance, string)
)

// OnLog installs cb for every message at or below verbosity. Passing a nil
// callback silences the server.
func OnLog(verbosity LogImportance, cb func(LogImportance, string)) {
	logVerbosity = verbosity
	logCallback = cb
}

func logf(importance LogImportance, format string, args ...any) {
	if logCallback == nil || importance > logVerbosity || importance == LogImportanceSilent {
		return
	}
	logCallback(importance, fmt.Sprintf(format, args...))
}
