package main

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/ui"
)

// Patterns used to colorize cobra's default help output.
var (
	// Section headers: an unindented line ending with ":" such as "Queries:".
	reGroupHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)

	// Command names: two-space indent, a word, then two or more spaces.
	reCommand = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	// Flag type annotations such as "--server string".
	reFlagType = regexp.MustCompile(`(--?\S+\s+)(string|int|int64|float64|duration|strings|stringArray)\b`)

	reDefault = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc returns a help function that styles cobra's plain help
// text when stdout supports color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		style := ui.Style{Color: ui.ShouldUseColor(os.Stdout)}
		if !style.Color {
			_ = cmd.Usage()
			return
		}

		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		if cmd.Long != "" {
			fmt.Fprintf(&buf, "%s\n\n", strings.TrimSpace(cmd.Long))
		} else if cmd.Short != "" {
			fmt.Fprintf(&buf, "%s\n\n", cmd.Short)
		}
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelp(buf.String(), style))
	}
}

func colorizeHelp(s string, style ui.Style) string {
	s = reGroupHeader.ReplaceAllStringFunc(s, func(m string) string {
		return style.Accent(strings.TrimSpace(m))
	})
	s = reCommand.ReplaceAllStringFunc(s, func(m string) string {
		parts := reCommand.FindStringSubmatch(m)
		return parts[1] + style.Accent(parts[2]) + parts[3]
	})
	s = reFlagType.ReplaceAllStringFunc(s, func(m string) string {
		parts := reFlagType.FindStringSubmatch(m)
		return parts[1] + style.Muted(parts[2])
	})
	return reDefault.ReplaceAllStringFunc(s, style.Muted)
}
