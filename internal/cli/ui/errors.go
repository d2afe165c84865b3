package ui

import (
	"fmt"
	"strings"
)

// FormatError returns a styled error line followed by optional fix
// suggestions. Styles render as plain text when color is unavailable.
func FormatError(msg string, suggestions ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleBoldRed.Render("Error:"), msg)
	writeSuggestions(&b, suggestions)
	return b.String()
}

// FormatWarning is FormatError for problems that do not stop the command.
func FormatWarning(msg string, suggestions ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleWarning.Render(SymbolWarning+" Warning:"), msg)
	writeSuggestions(&b, suggestions)
	return b.String()
}

func writeSuggestions(b *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(StyleHint.Render("  Try:") + "\n")
	for _, s := range suggestions {
		fmt.Fprintf(b, "    %s %s\n", StyleHint.Render(SymbolArrow), s)
	}
}
