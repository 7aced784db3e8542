package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidwatch/raidwatch/internal/engine"
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/games/eternalcity"
	"github.com/raidwatch/raidwatch/internal/procscan"
	"github.com/raidwatch/raidwatch/internal/registry"
	"github.com/raidwatch/raidwatch/internal/session"
)

type fakeLister struct {
	procs []procscan.Process
}

func (f *fakeLister) List(context.Context) ([]procscan.Process, error) {
	return f.procs, nil
}

func (f *fakeLister) Lookup(_ context.Context, pid int32) (procscan.Process, bool, error) {
	for _, p := range f.procs {
		if p.PID == pid {
			return p, true, nil
		}
	}
	return procscan.Process{}, false, nil
}

type hookRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (h *hookRecorder) record(ev session.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *hookRecorder) ofType(t session.EventType) []session.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []session.Event
	for _, ev := range h.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// newTestMonitor writes script as engine.sh in a resource dir and returns a
// monitor that runs it with /bin/sh.
func newTestMonitor(t *testing.T, script string, procs ...procscan.Process) (*Monitor, *event.Recorder, *hookRecorder) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.sh"), []byte(script), 0o755))

	rec := &event.Recorder{}
	hooks := &hookRecorder{}
	m := NewMonitor(
		registry.Default(registry.Deps{}),
		EngineConfig{Executable: "/bin/sh", Script: "engine.sh", ResourceDir: dir},
		rec,
		WithProcessLister(&fakeLister{procs: procs}),
	)
	m.SetSessionHook(hooks.record)
	t.Cleanup(func() { m.StopAll() })
	return m, rec, hooks
}

const loopingEngine = `
echo "Sniffer started on PID $1"
echo "plugin $2"
while true; do sleep 0.05; done
`

func logTexts(rec *event.Recorder) []string {
	var out []string
	for _, ev := range rec.Named(event.LogUpdate) {
		if s, ok := ev.Payload.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestStartAndStop(t *testing.T) {
	m, rec, hooks := newTestMonitor(t, loopingEngine)

	st, err := m.Start(context.Background(), eternalcity.Domain, []int32{4242})
	require.NoError(t, err)
	assert.Equal(t, eternalcity.Domain, st.ManagerID)
	assert.Equal(t, int32(4242), st.TargetPID)
	assert.Equal(t, session.Running, st.Status)
	assert.NotEmpty(t, st.ID)
	assert.NotZero(t, st.EnginePID)

	require.Eventually(t, func() bool { return len(logTexts(rec)) >= 2 }, 5*time.Second, 10*time.Millisecond)
	logs := logTexts(rec)
	assert.Equal(t, "Sniffer started on PID 4242", logs[0])
	assert.Equal(t, "plugin "+filepath.Join(m.engine.ResourceDir, "plugins", "eternal_city_parser.py"), logs[1])

	for _, ev := range rec.Events() {
		assert.Equal(t, eternalcity.Domain, ev.ManagerID)
	}

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, st.ID, sessions[0].ID)

	got, ok := m.Session(eternalcity.Domain)
	require.True(t, ok)
	assert.Equal(t, st.ID, got.ID)

	stopped, err := m.Stop(eternalcity.Domain)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Empty(t, m.Sessions())
	_, ok = m.Session(eternalcity.Domain)
	assert.False(t, ok)

	stopped, err = m.Stop(eternalcity.Domain)
	require.NoError(t, err)
	assert.False(t, stopped, "stop is idempotent")

	require.Len(t, hooks.ofType(session.EventStarted), 1)
	ended := hooks.ofType(session.EventEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, session.Stopped, ended[0].State.Status)
	assert.Zero(t, ended[0].ActiveCount)

	assert.Empty(t, rec.Named(event.StatusUpdate), "explicit stop sends no status update")
}

func TestUnknownManager(t *testing.T) {
	m, rec, _ := newTestMonitor(t, loopingEngine)

	_, err := m.Start(context.Background(), "no-such-game", []int32{1})
	assert.True(t, errors.Is(err, registry.ErrUnknownManager))

	_, err = m.Stop("no-such-game")
	assert.True(t, errors.Is(err, registry.ErrUnknownManager))

	_, err = m.Processes(context.Background(), "no-such-game")
	assert.True(t, errors.Is(err, registry.ErrUnknownManager))

	assert.Empty(t, rec.Events(), "nothing spawned")
}

func TestStartDiscoversTarget(t *testing.T) {
	m, rec, _ := newTestMonitor(t, loopingEngine,
		procscan.Process{PID: 10, Name: "bash"},
		procscan.Process{PID: 77, Name: "velocity"},
		procscan.Process{PID: 55, Name: "City.exe"},
	)

	st, err := m.Start(context.Background(), eternalcity.Domain, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(55), st.TargetPID)
	assert.Equal(t, "City.exe", st.TargetName)

	require.Eventually(t, func() bool { return len(logTexts(rec)) >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Sniffer started on PID 55", logTexts(rec)[0])
}

func TestStartWithoutTarget(t *testing.T) {
	m, rec, _ := newTestMonitor(t, loopingEngine, procscan.Process{PID: 10, Name: "bash"})

	_, err := m.Start(context.Background(), eternalcity.Domain, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTarget))
	assert.Empty(t, m.Sessions())
	assert.Empty(t, rec.Events())
}

func TestStartUsesFirstPid(t *testing.T) {
	m, rec, _ := newTestMonitor(t, loopingEngine, procscan.Process{PID: 2, Name: "city.exe"})

	st, err := m.Start(context.Background(), eternalcity.Domain, []int32{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.TargetPID)
	assert.Equal(t, "city.exe", st.TargetName)

	require.Eventually(t, func() bool { return len(logTexts(rec)) >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Sniffer started on PID 2", logTexts(rec)[0])
}

func TestEngineExitEndsSession(t *testing.T) {
	m, rec, hooks := newTestMonitor(t, `echo "bye"; exit 3`)

	_, err := m.Start(context.Background(), eternalcity.Domain, []int32{1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(hooks.ofType(session.EventEnded)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ended := hooks.ofType(session.EventEnded)[0]
	assert.Equal(t, session.Exited, ended.State.Status)
	assert.Contains(t, ended.State.ExitError, "exit status 3")
	assert.Empty(t, m.Sessions())

	statuses := rec.Named(event.StatusUpdate)
	require.Len(t, statuses, 1)
	assert.Equal(t, StoppedMessage, statuses[0].Payload)
	assert.Equal(t, eternalcity.Domain, statuses[0].ManagerID)

	stopped, err := m.Stop(eternalcity.Domain)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestSpawnFailure(t *testing.T) {
	m, rec, hooks := newTestMonitor(t, loopingEngine)
	m.SetEngine(EngineConfig{Executable: "/bin/sh", Script: filepath.Join(t.TempDir(), "missing.py")})

	_, err := m.Start(context.Background(), eternalcity.Domain, []int32{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrSpawn))
	assert.True(t, errors.Is(err, engine.ErrScriptNotFound))

	assert.Empty(t, m.Sessions())
	assert.Empty(t, hooks.ofType(session.EventStarted))

	statuses := rec.Named(event.StatusUpdate)
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0].Payload, "Failed to start: ")
}

func TestRestartReplacesSession(t *testing.T) {
	m, _, hooks := newTestMonitor(t, loopingEngine)

	first, err := m.Start(context.Background(), eternalcity.Domain, []int32{1})
	require.NoError(t, err)
	second, err := m.Start(context.Background(), eternalcity.Domain, []int32{2})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.EnginePID, second.EnginePID)

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)

	ended := hooks.ofType(session.EventEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, first.ID, ended[0].State.ID)
	assert.Equal(t, session.Stopped, ended[0].State.Status)
}

func TestDebounceSurvivesRestart(t *testing.T) {
	m, rec, _ := newTestMonitor(t, `
echo '{"game":"eternal-city","sub_type":"INVASION_ALERT","content":"wall breached"}'
while true; do sleep 0.05; done
`)

	_, err := m.Start(context.Background(), eternalcity.Domain, []int32{1})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.Named(event.AnalysisLog)) == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err = m.Stop(eternalcity.Domain)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), eternalcity.Domain, []int32{1})
	require.NoError(t, err)

	// The second engine repeats the alert well inside the window; the shared
	// handler must drop it.
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rec.Named(event.AnalysisLog), 1)
}

func TestProcessesFilter(t *testing.T) {
	m, _, _ := newTestMonitor(t, loopingEngine,
		procscan.Process{PID: 1, Name: "init"},
		procscan.Process{PID: 9, Name: "eternal-launcher"},
		procscan.Process{PID: 8, Name: "city.exe"},
	)

	all, err := m.Processes(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	matched, err := m.Processes(context.Background(), eternalcity.Domain)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, int32(8), matched[0].PID)
	assert.Equal(t, int32(9), matched[1].PID)
}

func TestSupportedManagers(t *testing.T) {
	m, _, _ := newTestMonitor(t, loopingEngine)

	supported := m.SupportedManagers()
	require.NotEmpty(t, supported)
	assert.Equal(t, eternalcity.Domain, supported[0].ID)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "/res/plugins/p.py", resolve("/res", "plugins/p.py"))
	assert.Equal(t, "/abs/p.py", resolve("/res", "/abs/p.py"))
	assert.Equal(t, "plugins/p.py", resolve("", "plugins/p.py"))
	assert.Equal(t, "", resolve("/res", ""))
}

func TestStopAll(t *testing.T) {
	m, _, hooks := newTestMonitor(t, loopingEngine)

	assert.Zero(t, m.StopAll(), "nothing running")

	_, err := m.Start(context.Background(), eternalcity.Domain, []int32{4242})
	require.NoError(t, err)
	assert.Equal(t, 1, m.StopAll())
	assert.Empty(t, m.Sessions())

	ended := hooks.ofType(session.EventEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, session.Stopped, ended[0].State.Status)
}
