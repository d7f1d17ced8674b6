package logging

import "github.com/fatih/color"

// Color functions for each log level, using fatih/color so that output
// degrades gracefully (no escape codes) when stdout/stderr isn't a TTY.
var (
	colorError = color.New(color.FgRed, color.Bold).SprintFunc()
	colorWarn  = color.New(color.FgYellow).SprintFunc()
	colorInfo  = color.New(color.FgGreen).SprintFunc()
	colorDebug = color.New(color.FgCyan).SprintFunc()
	colorTrace = color.New(color.FgWhite).SprintFunc()
)

func (l Level) color(s string) string {
	switch l {
	case Error:
		return colorError(s)
	case Warn:
		return colorWarn(s)
	case Info:
		return colorInfo(s)
	case Debug:
		return colorDebug(s)
	default:
		return colorTrace(s)
	}
}
