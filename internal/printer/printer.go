// Package printer renders human-facing CLI output: coloured status lines on
// stdout and structured error reports on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY.
	// Users can disable with NO_COLOR.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

// Destinations for normal and error output. Tests redirect them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Fprintf(Stdout, "✓ %s", strings.TrimPrefix(fmt.Sprintf(format, a...), "✓ "))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Warning prints a warning in yellow to stderr.
func Warning(format string, a ...any) {
	yellow.Fprintf(Stderr, "⚠️  %s", strings.TrimPrefix(fmt.Sprintf(format, a...), "⚠️  "))
}

// Step prints a step message with emphasis.
func Step(format string, a ...any) {
	cyan.Fprintf(Stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Urgent prints a line highlighted by urgency: emergency in red, urgent in yellow.
func Urgent(level string, line string) {
	switch level {
	case "emergency":
		red.Fprintln(Stdout, line)
	case "urgent":
		yellow.Fprintln(Stdout, line)
	default:
		fmt.Fprintln(Stdout, line)
	}
}

// Muted prints a de-emphasised line, used for empty results.
func Muted(format string, a ...any) {
	faint.Fprintf(Stdout, format, a...)
}

// Failure reports cause under title and returns an error that still wraps
// cause, so callers can inspect it with errors.Is.
func Failure(title string, cause error, suggestions ...string) error {
	report(title, cause.Error(), suggestions)
	return fmt.Errorf("%s: %w", title, cause)
}

func report(title, explanation string, suggestions []string) {
	red.Fprintf(Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Stderr, "%s\n", explanation)
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Stderr, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(Stderr, "  %d. %s\n", i+1, suggestion)
		}
	}
}
