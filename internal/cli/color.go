package cli

import (
	"github.com/smsgate/smsgate/internal/cli/ui"
)

// colorEnabled returns true if stderr is a terminal and color should be used.
func colorEnabled() bool {
	return ui.ColorEnabled()
}

// The helpers below render through a forced-ANSI renderer: the caller has
// already made the terminal decision through the color parameter.

func dim(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Faint(true).Render(text)
}

func cyan(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Foreground(ui.ColorCyan).Render(text)
}

func boldCyan(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Bold(true).Foreground(ui.ColorCyan).Render(text)
}
