// Package timer renders the dungeon entry countdown for each manager.
package timer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/raidwatch/raidwatch/internal/countdown"
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/tui/client"
	"github.com/raidwatch/raidwatch/internal/tui/theme"
)

// Model tracks the latest entry deadline per manager.
type Model struct {
	Width   int
	entries map[string]client.EntryTime
}

// New creates an empty timer model.
func New() Model {
	return Model{entries: make(map[string]client.EntryTime)}
}

// Set records a deadline received from the server.
func (m *Model) Set(managerID string, t client.EntryTime) {
	m.entries[managerID] = t
}

// Get returns the current deadline for a manager.
func (m Model) Get(managerID string) (client.EntryTime, bool) {
	t, ok := m.entries[managerID]
	return t, ok
}

// Clear forgets a manager's deadline.
func (m *Model) Clear(managerID string) {
	delete(m.entries, managerID)
}

// Len returns the number of tracked deadlines.
func (m Model) Len() int { return len(m.entries) }

// Refresh recomputes every countdown at now.
func (m *Model) Refresh(now time.Time) {
	for id, t := range m.entries {
		m.entries[id] = client.EntryTime(countdown.Refresh(event.EntryTime(t), now))
	}
}

// View renders one row per manager with a running countdown.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := theme.StyleHeader.Render("  Entry window")
	if len(m.entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header,
			theme.StyleDimmed.Render("  No invasion seen yet"))
	}

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := []string{header}
	for _, id := range ids {
		t := m.entries[id]
		var clock string
		if t.IsExpired {
			clock = lipgloss.NewStyle().Foreground(theme.ColorDimmed).
				Render(fmt.Sprintf("closed %s ago", t.DisplayTime))
		} else {
			clock = lipgloss.NewStyle().Foreground(theme.TimerColor(t.RemainingSeconds)).Bold(true).
				Render(t.DisplayTime)
		}
		closes := time.Unix(t.TargetTs, 0).Format("15:04:05")
		lines = append(lines, fmt.Sprintf("  %-16s %s  %s",
			id, clock, theme.StyleDimmed.Render("closes "+closes)))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(lines, "\n"))
}
