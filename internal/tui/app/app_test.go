package app

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/raidwatch/raidwatch/internal/tui/client"
)

type fakeAPI struct {
	mu       sync.Mutex
	managers []client.Manager
	started  []string
	stopped  []string
	startErr error
}

func (f *fakeAPI) Managers() ([]client.Manager, error) { return f.managers, nil }

func (f *fakeAPI) Start(id string, pids ...int32) (*client.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &client.SessionState{ManagerID: id, Status: client.StatusRunning}, nil
}

func (f *fakeAPI) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func newTestModel(api API) Model {
	m := New(nil, api)
	m.width = 100
	m.height = 40
	m.connected = true
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDisconnectOverlay(t *testing.T) {
	m := New(nil, nil)
	m.width = 80
	m.height = 24
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect overlay should contain 'Reconnecting'")
	}
}

func TestManagersLoadAndSelection(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, managersMsg{managers: []client.Manager{
		{ID: "zeta", Label: "Zeta"},
		{ID: "eternal-city", Label: "Eternal City"},
	}})

	if m.managers[0].ID != "eternal-city" {
		t.Errorf("managers not sorted: %+v", m.managers)
	}
	if m.statusBar.Managers != 2 {
		t.Errorf("status managers = %d, want 2", m.statusBar.Managers)
	}

	m, _ = update(t, m, keyMsg("j"))
	if id, _ := m.selectedManager(); id != "zeta" {
		t.Errorf("selected = %q after j, want zeta", id)
	}
	m, _ = update(t, m, keyMsg("j"))
	if id, _ := m.selectedManager(); id != "eternal-city" {
		t.Errorf("selection should wrap, got %q", id)
	}
}

func TestManagersLoadError(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, managersMsg{err: errors.New("connection refused")})
	if len(m.log.Entries) != 1 || !strings.Contains(m.log.Entries[0].Message, "connection refused") {
		t.Errorf("error not logged: %+v", m.log.Entries)
	}
}

func TestStartAndStopKeys(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(api)
	m, _ = update(t, m, managersMsg{managers: []client.Manager{{ID: "eternal-city"}}})

	_, cmd := update(t, m, keyMsg("s"))
	if cmd == nil {
		t.Fatal("start key returned no command")
	}
	if res := cmd().(actionMsg); res.err != nil || res.managerID != "eternal-city" {
		t.Errorf("start result = %+v", res)
	}

	_, cmd = update(t, m, keyMsg("x"))
	cmd()
	if len(api.started) != 1 || len(api.stopped) != 1 {
		t.Errorf("started=%v stopped=%v, want one each", api.started, api.stopped)
	}
}

func TestStartFailureIsLogged(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("no target process")}
	m := newTestModel(api)
	m, _ = update(t, m, managersMsg{managers: []client.Manager{{ID: "eternal-city"}}})

	_, cmd := update(t, m, keyMsg("s"))
	m, _ = update(t, m, cmd())
	if len(m.log.Entries) != 1 || !strings.Contains(m.log.Entries[0].Message, "no target process") {
		t.Errorf("start error not logged: %+v", m.log.Entries)
	}
}

func TestNoActionWithoutManagers(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	if _, cmd := update(t, m, keyMsg("s")); cmd != nil {
		t.Error("start with no managers should do nothing")
	}
}

func TestSessionMessages(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, managersMsg{managers: []client.Manager{{ID: "eternal-city", Label: "Eternal City"}}})

	running := &client.SessionState{ManagerID: "eternal-city", TargetPID: 4242, Status: client.StatusRunning, StartedAt: time.Now()}
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: []*client.SessionState{running}}})
	if m.statusBar.Running != 1 {
		t.Errorf("running = %d after snapshot, want 1", m.statusBar.Running)
	}
	if v := m.View(); !strings.Contains(v, "pid 4242") {
		t.Errorf("view missing session detail:\n%s", v)
	}

	ended := &client.SessionState{ManagerID: "eternal-city", TargetPID: 4242, Status: client.StatusFailed, ExitError: "exit status 1"}
	m, _ = update(t, m, client.WSSessionMsg{Payload: client.SessionPayload{Session: ended}})
	if m.statusBar.Running != 0 {
		t.Errorf("running = %d after end, want 0", m.statusBar.Running)
	}
	last := m.log.Entries[len(m.log.Entries)-1]
	if !strings.Contains(last.Message, "exit status 1") {
		t.Errorf("exit error not logged: %+v", last)
	}
}

func TestAlertAndTimerMessages(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSRaidMsg{ManagerID: "eternal-city", Payload: client.RaidAlert{Content: json.RawMessage(`"boss"`)}})
	m, _ = update(t, m, client.WSInvasionMsg{ManagerID: "eternal-city", Payload: client.InvasionAlert{Content: json.RawMessage(`"gate"`)}})
	if m.statusBar.Raids != 1 || m.statusBar.Invasions != 1 {
		t.Errorf("status counts = %d raids, %d invasions", m.statusBar.Raids, m.statusBar.Invasions)
	}

	now := time.Now()
	m, _ = update(t, m, client.WSEntryTimerMsg{ManagerID: "eternal-city", Payload: client.EntryTime{
		TargetTs: now.Unix() + 120, RemainingSeconds: 120, DisplayTime: "02:00",
	}})
	m, cmd := update(t, m, tickMsg(now.Add(30*time.Second)))
	if cmd == nil {
		t.Error("tick should re-arm itself")
	}
	got, _ := m.timers.Get("eternal-city")
	if got.RemainingSeconds != 90 || got.DisplayTime != "01:30" {
		t.Errorf("timer after tick = %+v, want 90s", got)
	}
}

func TestLogOverlay(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSLogMsg{ManagerID: "eternal-city", Status: true, Text: "Sniffing on ports"})
	m, _ = update(t, m, keyMsg("l"))
	if m.overlay != OverlayLog {
		t.Fatal("l should open the log overlay")
	}
	if v := m.View(); !strings.Contains(v, "Sniffing on ports") {
		t.Errorf("log overlay missing entry:\n%s", v)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.overlay != OverlayNone {
		t.Error("esc should close the overlay")
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(nil)
	_, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
