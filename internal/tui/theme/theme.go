// Package theme provides the Lip Gloss color palette and reusable styles
// for the raidwatch TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Session status colors.
var (
	ColorRunning = lipgloss.Color("#16a34a")
	ColorStopped = lipgloss.Color("#4b5563")
	ColorExited  = lipgloss.Color("#d97706")
	ColorFailed  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Alert colors.
var (
	ColorRaid     = lipgloss.Color("#a855f7")
	ColorInvasion = lipgloss.Color("#3b82f6")
	ColorStatus   = lipgloss.Color("#06b6d4")
)

// Countdown thresholds.
var (
	ColorTimerLow  = lipgloss.Color("#dc2626") // under a minute
	ColorTimerMid  = lipgloss.Color("#d97706") // under three minutes
	ColorTimerHigh = lipgloss.Color("#22c55e")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the Lip Gloss color for a session status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return ColorRunning
	case "stopped":
		return ColorStopped
	case "exited":
		return ColorExited
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph representing a session status.
func StatusGlyph(status string) string {
	switch status {
	case "running":
		return "●"
	case "stopped":
		return "○"
	case "exited":
		return "◌"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// TimerColor returns the color for a countdown with remaining seconds left.
func TimerColor(remaining int64) lipgloss.Color {
	switch {
	case remaining < 60:
		return ColorTimerLow
	case remaining < 180:
		return ColorTimerMid
	default:
		return ColorTimerHigh
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
