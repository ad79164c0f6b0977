package clifmt

import "github.com/fatih/color"

// Key, Success, Warn, Dim and Headerf are the small color vocabulary
// PrintNameDetailTable is built around: column headers in bold cyan,
// healthy rows in green, warnings in yellow, secondary text dimmed. color
// auto-detects non-terminal output (pipes, CI logs) and degrades to plain
// text on its own, so callers never need to check isatty themselves.
var (
	keyColor     = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.FgCyan, color.Bold, color.Underline)
)

func Key(s string) string     { return keyColor.Sprint(s) }
func Success(s string) string { return successColor.Sprint(s) }
func Warn(s string) string    { return warnColor.Sprint(s) }
func Dim(s string) string     { return dimColor.Sprint(s) }

func Headerf(format string, args ...any) string {
	return headerColor.Sprintf(format, args...)
}
