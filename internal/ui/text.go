// Package ui holds terminal helpers for the credvault CLI: colour
// formatters, spinners, prompts and credential rendering.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Formatter applies semantic formatting to text
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f Formatter) Sprint(a ...interface{}) string {
	text := fmt.Sprint(a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

func (f Formatter) Sprintf(format string, a ...interface{}) string {
	return f.Sprint(fmt.Sprintf(format, a...))
}

// noColor reports whether colour output is disabled, either by NO_COLOR or
// because the terminal does not support it.
func noColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	return color.NoColor
}

var (
	Success   = Formatter{color.New(color.FgGreen), "", ""}
	Error     = Formatter{color.New(color.FgRed), "", ""}
	Warning   = Formatter{color.New(color.FgYellow), "", ""}
	Info      = Formatter{color.New(color.FgCyan), "", ""}
	Code      = Formatter{color.New(color.FgYellow), "`", "`"}
	Path      = Formatter{color.New(color.FgYellow), "", ""}
	Highlight = Formatter{color.New(color.FgMagenta, color.Bold), "'", "'"}
	Muted     = Formatter{color.New(color.FgHiBlack), "(", ")"}
	Added     = Formatter{color.New(color.FgGreen), "", ""}
	Removed   = Formatter{color.New(color.FgRed), "", ""}
)

// Status markers
var (
	CheckMark = "✓"
	CrossMark = "✗"
	WarnMark  = "⚠"
)

// EnsureNewline appends a newline unless s already ends with one
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}
