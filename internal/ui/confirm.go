package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase is what the user must type to approve a forced apply
const ConfirmPhrase = "yes"

// Confirm prints a warning box to out and reads one line from in. It returns
// true only when the line equals phrase.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string, phrase string) bool {
	width := TerminalWidth(out)

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", WarningMarker, title)), ""}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render(" • "+w))
	}
	lines = append(lines, "")

	_, _ = fmt.Fprintln(out, boxStyle(WarningColor, width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == phrase {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

// ConfirmForcedApply asks before auto-confirming apply prompts on several devices
func ConfirmForcedApply(in io.Reader, out io.Writer, devices []string) bool {
	return Confirm(in, out, "FORCED APPLY",
		[]string{
			fmt.Sprintf("Configuration will be applied to %d devices: %s", len(devices), strings.Join(devices, ", ")),
			"Apply prompts (for example a service restart that drops sessions) are answered yes",
			"Apply failures are ignored on every device",
		},
		ConfirmPhrase,
	)
}
