// Package ui renders the terminal-facing summary blocks devenv prints:
// accented status lines and the bordered agent-instructions block shown
// once a restore has run, via charmbracelet/lipgloss.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	accentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	blockStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("4")).
			Padding(0, 1)
)

// Accent renders s as a success/highlight line.
func Accent(s string) string {
	return accentStyle.Render(s)
}

// Error renders s as an error line.
func Error(s string) string {
	return errorStyle.Render(s)
}

// Block renders title and body inside a rounded border, used to echo
// --agent-instructions prominently once a restore has run, ahead of its
// summary line.
func Block(title, body string) string {
	content := body
	if title != "" {
		content = accentStyle.Render(title) + "\n" + body
	}
	return blockStyle.Render(content)
}
