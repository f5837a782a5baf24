package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/testide/pkg/core"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusUnstarted lipgloss.Style
	StatusRunning   lipgloss.Style
	StatusSuccess   lipgloss.Style
	StatusError     lipgloss.Style
	StatusStopped   lipgloss.Style
}

// NewStyles returns the default palette.
func NewStyles() *Styles {
	return &Styles{
		Header1: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: lipgloss.NewStyle().Bold(true),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),

		StatusUnstarted: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		StatusSuccess:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		StatusStopped:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// plainStyles renders every style as plain text.
func plainStyles() *Styles {
	p := lipgloss.NewStyle()
	return &Styles{
		Header1: p, Header2: p, Bold: p, Muted: p,
		Success: p, Warning: p, Error: p, Info: p,
		StatusUnstarted: p, StatusRunning: p, StatusSuccess: p, StatusError: p, StatusStopped: p,
	}
}

// Status returns the style of a status.
func (s *Styles) Status(st core.Status) lipgloss.Style {
	switch st {
	case core.StatusRunning:
		return s.StatusRunning
	case core.StatusSuccess:
		return s.StatusSuccess
	case core.StatusError:
		return s.StatusError
	case core.StatusStopped:
		return s.StatusStopped
	default:
		return s.StatusUnstarted
	}
}

// statusSymbol returns the marker printed before a status.
func statusSymbol(st core.Status) string {
	switch st {
	case core.StatusRunning:
		return "~"
	case core.StatusSuccess:
		return "✓"
	case core.StatusError:
		return "✗"
	case core.StatusStopped:
		return "■"
	default:
		return "·"
	}
}
