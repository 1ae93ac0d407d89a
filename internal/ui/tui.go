// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the speaker UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a new TUI model. quit runs when the user presses q and
// may be nil.
func NewModel(quit func()) Model {
	return Model{
		state: StateOpening,
		quit:  quit,
	}
}

// Run creates the TUI program. The caller starts it with Run and feeds it
// status through Notifier.
func Run(quit func()) *tea.Program {
	return tea.NewProgram(NewModel(quit), tea.WithAltScreen())
}

// Notifier adapts a program to the status callback the speaker takes.
func Notifier(p *tea.Program) func(StatusMsg) {
	return func(msg StatusMsg) {
		p.Send(msg)
	}
}
