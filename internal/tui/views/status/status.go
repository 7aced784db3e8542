package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/raidwatch/raidwatch/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Running   int
	Managers  int
	Raids     int
	Invasions int
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := fmt.Sprintf("%d/%d monitoring", m.Running, m.Managers)
	alerts := lipgloss.NewStyle().Foreground(theme.ColorRaid).Render(fmt.Sprintf("%d raids", m.Raids)) +
		"  " + lipgloss.NewStyle().Foreground(theme.ColorInvasion).Render(fmt.Sprintf("%d invasions", m.Invasions))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts + sep + alerts

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
