// Package cliui provides reusable terminal UI helpers (styles, marks and the
// pretty stream renderer) for tokenstream CLI commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	KeyStyle   = lipgloss.NewStyle().Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	CodeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	FenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ToolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	WarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// DisableColor renders every style as plain text, for --no-color and NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
