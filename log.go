package rnet

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
	pterm.DefaultLogger.Level = pterm.LogLevelWarn
}

// Leveled logging wrappers over pterm's default logger. Host startup and
// outgoing connect attempts are logged at info; peer timeouts and dropped
// datagrams are logged at debug; disconnects are not logged. The service
// loop never logs above debug on the per-datagram path.

func logDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func logInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func logWarn(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func logError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug turns on debug-level logging for the package.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
