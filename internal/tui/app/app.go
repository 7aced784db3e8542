package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/raidwatch/raidwatch/internal/tui/client"
	"github.com/raidwatch/raidwatch/internal/tui/theme"
	"github.com/raidwatch/raidwatch/internal/tui/views/alerts"
	"github.com/raidwatch/raidwatch/internal/tui/views/eventlog"
	"github.com/raidwatch/raidwatch/internal/tui/views/status"
	"github.com/raidwatch/raidwatch/internal/tui/views/timer"
)

// API is the part of the REST client the TUI drives.
type API interface {
	Managers() ([]client.Manager, error)
	Start(managerID string, pids ...int32) (*client.SessionState, error)
	Stop(managerID string) error
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayLog
)

const tickInterval = time.Second

type managersMsg struct {
	managers []client.Manager
	err      error
}

type actionMsg struct {
	managerID string
	verb      string
	err       error
}

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	api    API
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	managers []client.Manager
	sessions map[string]*client.SessionState // by manager id

	selectedIdx int
	overlay     Overlay

	statusBar status.Model
	timers    timer.Model
	alerts    alerts.Model
	log       eventlog.Model

	connected bool
}

// New creates the root model.
func New(ws *client.WSClient, api API) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		api:       api,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		sessions:  make(map[string]*client.SessionState),
		statusBar: status.New(),
		timers:    timer.New(),
		alerts:    alerts.New(),
		log:       eventlog.New(),
	}
}

// Init starts the WebSocket connection, loads the manager list and starts
// the countdown clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchManagers(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchManagers() tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		list, err := api.Managers()
		return managersMsg{managers: list, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.timers.Width = msg.Width
		m.alerts.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.timers.Refresh(time.Time(msg))
		return m, tick()

	case managersMsg:
		if msg.err != nil {
			m.log.Add(eventlog.KindErr, "loading managers: "+msg.err.Error())
			return m, nil
		}
		m.managers = msg.managers
		sort.Slice(m.managers, func(i, j int) bool { return m.managers[i].ID < m.managers[j].ID })
		if m.selectedIdx >= len(m.managers) {
			m.selectedIdx = 0
		}
		m.updateCounts()
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.log.AddFor(msg.managerID, eventlog.KindErr, msg.verb+" failed: "+msg.err.Error())
		}
		return m, nil

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.log.Add(eventlog.KindWS, "connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.log.Add(eventlog.KindWS, "disconnected: "+msg.Err.Error())
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.sessions = make(map[string]*client.SessionState)
		for _, s := range msg.Payload.Sessions {
			m.sessions[s.ManagerID] = s
		}
		m.updateCounts()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSSessionMsg:
		s := msg.Payload.Session
		m.sessions[s.ManagerID] = s
		if msg.Started {
			m.log.AddFor(s.ManagerID, eventlog.KindStatus, fmt.Sprintf("engine attached to pid %d", s.TargetPID))
		} else if s.ExitError != "" {
			m.log.AddFor(s.ManagerID, eventlog.KindErr, "engine ended: "+s.ExitError)
		}
		m.updateCounts()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSLogMsg:
		kind := eventlog.KindLog
		if msg.Status {
			kind = eventlog.KindStatus
		}
		m.log.AddFor(msg.ManagerID, kind, msg.Text)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSRaidMsg:
		m.alerts.AddRaid(msg.ManagerID, msg.Payload)
		m.updateCounts()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSInvasionMsg:
		m.alerts.AddInvasion(msg.ManagerID, msg.Payload)
		m.updateCounts()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSEntryTimerMsg:
		m.timers.Set(msg.ManagerID, msg.Payload)
		return m, m.ws.ReadLoop(m.ctx)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay == OverlayLog {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Log):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.log.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.log.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if len(m.managers) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.managers)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.managers) > 0 {
			m.selectedIdx = (m.selectedIdx - 1 + len(m.managers)) % len(m.managers)
		}
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m, m.action("start", func(api API, id string) error {
			_, err := api.Start(id)
			return err
		})

	case key.Matches(msg, m.keys.Stop):
		return m, m.action("stop", func(api API, id string) error {
			return api.Stop(id)
		})

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchManagers()

	case key.Matches(msg, m.keys.Log):
		m.overlay = OverlayLog
		return m, nil
	}

	return m, nil
}

// action runs fn against the selected manager off the UI goroutine.
func (m Model) action(verb string, fn func(API, string) error) tea.Cmd {
	id, ok := m.selectedManager()
	if !ok || m.api == nil {
		return nil
	}
	api := m.api
	return func() tea.Msg {
		return actionMsg{managerID: id, verb: verb, err: fn(api, id)}
	}
}

func (m Model) selectedManager() (string, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.managers) {
		return "", false
	}
	return m.managers[m.selectedIdx].ID, true
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.overlay == OverlayLog {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			m.log.View(m.width, m.height-3),
		)
	}

	sections := []string{m.statusBar.View()}
	if !m.connected {
		sections = append(sections, renderDisconnected(m.width))
	}
	sections = append(sections,
		m.renderManagers(),
		m.timers.View(),
		m.alerts.View(m.alertRows()),
		theme.StyleDimmed.Render("  j/k:select  s:start  x:stop  r:reload  l:log  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) alertRows() int {
	used := 8 + len(m.managers) + m.timers.Len()
	if !m.connected {
		used += 3
	}
	return m.height - used
}

func renderDisconnected(width int) string {
	return lipgloss.NewStyle().
		Width(max(width-2, 20)).
		Align(lipgloss.Center).
		Foreground(theme.ColorDanger).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorDanger).
		Render("DISCONNECTED  Reconnecting...")
}

func (m Model) renderManagers() string {
	lines := []string{theme.StyleHeader.Render("  Managers")}
	if len(m.managers) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No managers available"))
	}
	for i, mg := range m.managers {
		prefix := "  "
		if i == m.selectedIdx {
			prefix = "> "
		}
		lines = append(lines, prefix+m.renderManagerLine(mg))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderManagerLine(mg client.Manager) string {
	label := mg.Label
	if label == "" {
		label = mg.ID
	}
	if len(label) > 24 {
		label = label[:23] + "…"
	}

	s, ok := m.sessions[mg.ID]
	if !ok {
		return theme.StyleDimmed.Render("· ") + fmt.Sprintf("%-24s", label) + theme.StyleDimmed.Render("  idle")
	}

	color := theme.StatusColor(s.Status)
	glyph := lipgloss.NewStyle().Foreground(color).Render(theme.StatusGlyph(s.Status))
	statusStr := lipgloss.NewStyle().Foreground(color).Render(s.Status)
	detail := fmt.Sprintf("pid %d", s.TargetPID)
	if s.TargetName != "" {
		detail += " (" + s.TargetName + ")"
	}
	if s.Running() {
		detail += "  up " + time.Since(s.StartedAt).Truncate(time.Second).String()
	}
	return glyph + " " + fmt.Sprintf("%-24s", label) + "  " + statusStr + "  " + theme.StyleDimmed.Render(detail)
}

func (m *Model) updateCounts() {
	running := 0
	for _, s := range m.sessions {
		if s.Running() {
			running++
		}
	}
	m.statusBar.Running = running
	m.statusBar.Managers = len(m.managers)
	m.statusBar.Raids, m.statusBar.Invasions = m.alerts.Counts()
}
