package monitor

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/raidwatch/raidwatch/internal/engine"
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/procscan"
	"github.com/raidwatch/raidwatch/internal/registry"
	"github.com/raidwatch/raidwatch/internal/session"
)

// ErrNoTarget is returned when no target pid was given and no running
// process matches the manager's keywords.
var ErrNoTarget = errors.New("no target process found")

// StoppedMessage is the status update sent when an engine exits on its own.
const StoppedMessage = "Monitoring stopped"

// EngineConfig describes how analysis engines are launched.
type EngineConfig struct {
	Executable      string
	InterpreterArgs []string
	// Script and plugin paths that are relative resolve against ResourceDir.
	Script      string
	ResourceDir string
}

// managed is the per-manager slot: a supervisor that lives as long as the
// monitor, and the session it is currently running, if any.
type managed struct {
	supervisor *engine.Supervisor
	state      *session.State
}

// Monitor starts and stops analysis engines on behalf of managers.
type Monitor struct {
	registry *registry.Registry
	procs    procscan.Lister
	store    *session.Store
	sink     event.Sink
	metrics  metrics.Collector
	now      func() time.Time
	log      *log.Entry

	mu      sync.Mutex // protects engine, managed, hook
	engine  EngineConfig
	managed map[string]*managed
	hook    func(session.Event)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMetrics attaches a metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(mon *Monitor) { mon.metrics = metrics.OrNoop(m) }
}

// WithProcessLister replaces the host process table.
func WithProcessLister(l procscan.Lister) Option {
	return func(mon *Monitor) { mon.procs = l }
}

// WithStore sets the session store.
func WithStore(s *session.Store) Option {
	return func(mon *Monitor) { mon.store = s }
}

// NewMonitor creates a monitor. Engine output from every session goes to sink.
func NewMonitor(reg *registry.Registry, cfg EngineConfig, sink event.Sink, opts ...Option) *Monitor {
	m := &Monitor{
		registry: reg,
		procs:    procscan.New(),
		store:    session.NewStore(),
		sink:     sink,
		metrics:  metrics.Noop{},
		now:      time.Now,
		log:      log.WithField("component", "monitor"),
		engine:   cfg,
		managed:  make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetEngine replaces the engine launch settings. Running sessions keep the
// settings they were started with.
func (m *Monitor) SetEngine(cfg EngineConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = cfg
}

// SetSessionHook registers a callback for session lifecycle events. Pass nil
// to disable. The hook runs without the monitor lock held.
func (m *Monitor) SetSessionHook(fn func(session.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// SupportedManagers lists the managers that can be started.
func (m *Monitor) SupportedManagers() []registry.Summary {
	return m.registry.Supported()
}

// Sessions returns the running sessions.
func (m *Monitor) Sessions() []*session.State {
	return m.store.GetAll()
}

// Session returns the running session for managerID.
func (m *Monitor) Session(managerID string) (*session.State, bool) {
	return m.store.Get(managerID)
}

// Processes lists host processes. With a manager id, only processes that
// match its keywords are returned, best match first.
func (m *Monitor) Processes(ctx context.Context, managerID string) ([]procscan.Process, error) {
	procs, err := m.procs.List(ctx)
	if err != nil {
		return nil, err
	}
	if managerID == "" {
		return procs, nil
	}
	cfg, err := m.registry.Get(managerID)
	if err != nil {
		return nil, err
	}
	return procscan.Filter(procs, cfg.ProcessKeywords), nil
}

// Start launches the manager's engine against a target process, replacing
// any session already running for it. Only the first of pids is used; with
// none, the best keyword match among running processes is chosen.
func (m *Monitor) Start(ctx context.Context, managerID string, pids []int32) (*session.State, error) {
	cfg, err := m.registry.Get(managerID)
	if err != nil {
		return nil, err
	}
	handler, err := m.registry.Handler(managerID)
	if err != nil {
		return nil, err
	}
	entry := m.log.WithField("manager", managerID)

	target, err := m.resolveTarget(ctx, cfg, pids, entry)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	eng := m.engine
	slot := m.slotLocked(managerID, handler)
	var ended []*session.State
	if slot.state != nil {
		// Supervisor.Start kills the old engine; the old session ends here.
		if old, ok := m.store.RemoveIf(managerID, slot.state.ID); ok {
			old.End(session.Stopped, m.now(), nil)
			ended = append(ended, old)
		}
		slot.state = nil
	}

	cmd := engine.Command{
		Executable:      eng.Executable,
		InterpreterArgs: eng.InterpreterArgs,
		Script:          resolve(eng.ResourceDir, eng.Script),
		Args: []string{
			strconv.FormatInt(int64(target.PID), 10),
			resolve(eng.ResourceDir, cfg.PluginPath),
		},
		Dir: eng.ResourceDir,
	}
	enginePID, err := slot.supervisor.Start(cmd, m.sink)
	if err != nil {
		m.mu.Unlock()
		m.publish(session.EventEnded, ended...)
		return nil, err
	}

	st := &session.State{
		ID:         uuid.NewString(),
		ManagerID:  managerID,
		Label:      cfg.Label,
		TargetPID:  target.PID,
		TargetName: target.Name,
		EnginePID:  enginePID,
		Status:     session.Running,
		StartedAt:  m.now(),
	}
	slot.state = st
	m.store.Put(st)
	snapshot := st.Clone()
	m.mu.Unlock()

	entry.WithFields(log.Fields{
		"session":   st.ID,
		"target":    target.PID,
		"engine":    st.EnginePID,
		"targetExe": target.Name,
	}).Info("monitoring started")

	m.publish(session.EventEnded, ended...)
	m.publish(session.EventStarted, snapshot)
	return snapshot, nil
}

// Stop kills the manager's engine. It reports whether a session was running.
func (m *Monitor) Stop(managerID string) (bool, error) {
	if _, err := m.registry.Get(managerID); err != nil {
		return false, err
	}

	m.mu.Lock()
	slot, ok := m.managed[managerID]
	if !ok || slot.state == nil {
		m.mu.Unlock()
		return false, nil
	}
	slot.supervisor.Stop()
	st := slot.state
	slot.state = nil
	m.store.RemoveIf(managerID, st.ID)
	st.End(session.Stopped, m.now(), nil)
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"manager": managerID, "session": st.ID}).Info("monitoring stopped")
	m.publish(session.EventEnded, st)
	return true, nil
}

// StopAll stops every running session and returns how many there were.
func (m *Monitor) StopAll() int {
	stopped := 0
	for _, id := range m.registry.IDs() {
		if ok, _ := m.Stop(id); ok {
			stopped++
		}
	}
	return stopped
}

func (m *Monitor) resolveTarget(ctx context.Context, cfg registry.ManagerConfig, pids []int32, entry *log.Entry) (procscan.Process, error) {
	if len(pids) > 0 {
		if len(pids) > 1 {
			entry.WithField("pids", pids).Warn("several target pids given, monitoring the first")
		}
		pid := pids[0]
		proc, exists, err := m.procs.Lookup(ctx, pid)
		switch {
		case err != nil:
			entry.WithError(err).WithField("pid", pid).Warn("could not check target process")
		case !exists:
			entry.WithField("pid", pid).Warn("target process does not exist, starting anyway")
		}
		proc.PID = pid
		return proc, nil
	}

	procs, err := m.procs.List(ctx)
	if err != nil {
		return procscan.Process{}, errors.Wrap(err, "discovering target process")
	}
	proc, ok := procscan.Best(procs, cfg.ProcessKeywords)
	if !ok {
		return procscan.Process{}, errors.Wrapf(ErrNoTarget, "no process matches %v", cfg.ProcessKeywords)
	}
	entry.WithFields(log.Fields{"pid": proc.PID, "name": proc.Name}).Info("discovered target process")
	return proc, nil
}

func (m *Monitor) slotLocked(managerID string, h engine.Handler) *managed {
	if slot, ok := m.managed[managerID]; ok {
		return slot
	}
	slot := &managed{}
	slot.supervisor = engine.NewSupervisor(managerID, h,
		engine.WithMetrics(m.metrics),
		engine.WithExitHook(func(pid int, err error) { m.engineExited(managerID, pid, err) }),
	)
	m.managed[managerID] = slot
	return slot
}

func (m *Monitor) engineExited(managerID string, pid int, exitErr error) {
	m.mu.Lock()
	slot, ok := m.managed[managerID]
	if !ok || slot.state == nil || slot.state.EnginePID != pid {
		m.mu.Unlock()
		return
	}
	st := slot.state
	slot.state = nil
	m.store.RemoveIf(managerID, st.ID)
	st.End(session.Exited, m.now(), exitErr)
	m.mu.Unlock()

	entry := m.log.WithFields(log.Fields{"manager": managerID, "session": st.ID})
	if exitErr != nil {
		entry = entry.WithError(exitErr)
	}
	entry.Warn("analysis engine exited, session ended")

	m.sink.Emit(event.Event{Name: event.StatusUpdate, ManagerID: managerID, Payload: StoppedMessage})
	m.publish(session.EventEnded, st)
}

func (m *Monitor) publish(t session.EventType, states ...*session.State) {
	active := m.store.ActiveCount()
	m.metrics.ActiveSessions(active)

	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook == nil {
		return
	}
	for _, st := range states {
		hook(session.Event{Type: t, State: st.Clone(), ActiveCount: active})
	}
}

func resolve(dir, path string) string {
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
