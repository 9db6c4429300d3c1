package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	// Header styles.
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray

	// Connection status styles.
	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	connectingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red

	// Agent activity styles.
	thinkingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	respondedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	idleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray

	// Message log styles.
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	messageStyle = lipgloss.NewStyle().PaddingLeft(1)

	// Spinner / error styles.
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
)
