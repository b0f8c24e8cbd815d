// ABOUTME: TUI program wrapper for the vsync monitor
// ABOUTME: Bridges feed events into the bubbletea event loop
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the monitor dashboard.
type TUI struct {
	program *tea.Program
}

// NewTUI wraps a model in a full-screen program.
func NewTUI(m Model) *TUI {
	return &TUI{
		program: tea.NewProgram(m, tea.WithAltScreen()),
	}
}

// Run blocks until the user quits.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Send injects a feed event into the UI loop.
func (t *TUI) Send(msg tea.Msg) {
	t.program.Send(msg)
}

// Stop ends the program from outside the UI loop.
func (t *TUI) Stop() {
	t.program.Quit()
}
