// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run creates the TUI program for player. The caller runs it.
func Run(player Player, serverAddr string) *tea.Program {
	return tea.NewProgram(NewModel(player, serverAddr), tea.WithAltScreen())
}
