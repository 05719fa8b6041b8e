package ui

import "github.com/charmbracelet/lipgloss"

// Styles is the client's palette: cyan prompt, green info, yellow warnings,
// red errors and bright yellow replies.
type Styles struct {
	Header  lipgloss.Style
	Prompt  lipgloss.Style
	User    lipgloss.Style
	AI      lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Help    lipgloss.Style
	Spinner lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1),
		Prompt:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		User:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		AI:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		Help:    lipgloss.NewStyle().Faint(true),
		Spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
}
