// Package ui renders terminal output for the wq CLI.
package ui

import "fmt"

// ANSI 256 color codes.
const (
	colorAccent = 74
	colorMuted  = 245
	colorError  = 167
)

// Style applies colors when enabled.
type Style struct {
	Color bool
}

func (s Style) paint(code int, text string) string {
	if !s.Color || text == "" {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Accent renders headers and identifiers.
func (s Style) Accent(text string) string { return s.paint(colorAccent, text) }

// Muted renders secondary text such as totals and empty cells.
func (s Style) Muted(text string) string { return s.paint(colorMuted, text) }

// Error renders failure messages.
func (s Style) Error(text string) string { return s.paint(colorError, text) }
