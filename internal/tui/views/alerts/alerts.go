// Package alerts renders the most recent raid and invasion alerts.
package alerts

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/raidwatch/raidwatch/internal/tui/client"
	"github.com/raidwatch/raidwatch/internal/tui/theme"
)

const maxAlerts = 50

// Kind distinguishes alert sources.
type Kind int

const (
	Raid Kind = iota
	Invasion
)

// Alert is one row in the feed.
type Alert struct {
	Kind    Kind
	Manager string
	Time    string
	Text    string
}

// Model is a newest-first alert feed.
type Model struct {
	Width  int
	Alerts []Alert
}

// New creates an empty feed.
func New() Model {
	return Model{}
}

// AddRaid records a raid-detected event.
func (m *Model) AddRaid(manager string, p client.RaidAlert) {
	m.push(Alert{Kind: Raid, Manager: manager, Time: p.Time, Text: client.Text(p.Content)})
}

// AddInvasion records an accepted invasion alert.
func (m *Model) AddInvasion(manager string, p client.InvasionAlert) {
	m.push(Alert{Kind: Invasion, Manager: manager, Time: p.LocalTime, Text: client.Text(p.Content)})
}

// Counts returns how many raids and invasions are in the feed.
func (m Model) Counts() (raids, invasions int) {
	for _, a := range m.Alerts {
		if a.Kind == Raid {
			raids++
		} else {
			invasions++
		}
	}
	return
}

func (m *Model) push(a Alert) {
	m.Alerts = append([]Alert{a}, m.Alerts...)
	if len(m.Alerts) > maxAlerts {
		m.Alerts = m.Alerts[:maxAlerts]
	}
}

// View renders up to rows alerts.
func (m Model) View(rows int) string {
	header := theme.StyleHeader.Render("  Alerts")
	if len(m.Alerts) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header,
			theme.StyleDimmed.Render("  No alerts yet"))
	}
	if rows < 1 {
		rows = 1
	}

	width := m.Width
	if width < 40 {
		width = 40
	}
	textW := width - 40
	if textW < 10 {
		textW = 10
	}

	lines := []string{header}
	for i, a := range m.Alerts {
		if i >= rows {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  … %d older", len(m.Alerts)-rows)))
			break
		}
		label, color := "RAID", theme.ColorRaid
		if a.Kind == Invasion {
			label, color = "INVASION", theme.ColorInvasion
		}
		text := a.Text
		if len(text) > textW {
			text = text[:textW-1] + "…"
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s %s",
			theme.StyleDimmed.Render(a.Time),
			lipgloss.NewStyle().Foreground(color).Bold(true).Width(9).Render(label),
			theme.StyleDimmed.Render(a.Manager),
			text))
	}
	return strings.Join(lines, "\n")
}
