package engine

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/stream"
)

// ExitHook is called when a subprocess ends without Stop being called.
// err is the result of waiting on it.
type ExitHook func(pid int, err error)

// Supervisor owns at most one running analysis subprocess for a handler.
type Supervisor struct {
	managerID string
	handler   Handler
	metrics   metrics.Collector
	onExit    ExitHook
	log       *log.Entry

	mu      sync.Mutex
	current *process
}

// process is one spawned subprocess. stopped is set once Stop (or a later
// Start) has taken ownership away from it; from then on its output is dropped.
type process struct {
	pid     int
	stopped atomic.Bool
	kill    func() error

	// dispatchMu keeps stdout and stderr deliveries from interleaving.
	dispatchMu sync.Mutex
	done       chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithMetrics attaches a metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = metrics.OrNoop(m) }
}

// WithExitHook registers a callback for subprocesses that exit on their own.
func WithExitHook(h ExitHook) Option {
	return func(s *Supervisor) { s.onExit = h }
}

// NewSupervisor creates a supervisor that delivers output to h.
func NewSupervisor(managerID string, h Handler, opts ...Option) *Supervisor {
	s := &Supervisor{
		managerID: managerID,
		handler:   h,
		metrics:   metrics.Noop{},
		log:       log.WithFields(log.Fields{"component": "supervisor", "manager": managerID}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start kills any running subprocess without waiting for it, then spawns
// a new one and returns its pid. Spawn failures go to the handler's error
// hook and are returned; nothing is retried.
func (s *Supervisor) Start(c Command, sink event.Sink) (int, error) {
	sink = s.countingSink(event.Tagged(s.managerID, sink))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	pid, err := s.spawnLocked(c, sink)
	if err != nil {
		s.metrics.SubprocessStart(s.managerID, metrics.ResultError)
		s.log.WithError(err).Error("failed to start analysis engine")
		s.handler.OnError("Failed to start: "+err.Error(), sink)
		return 0, err
	}
	s.metrics.SubprocessStart(s.managerID, metrics.ResultOK)
	return pid, nil
}

func (s *Supervisor) spawnLocked(c Command, sink event.Sink) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	cmd := c.build()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, errors.Wrapf(ErrSpawn, "stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, errors.Wrapf(ErrSpawn, "stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(ErrSpawn, "%s: %v", c.Executable, err)
	}

	p := &process{
		pid:  cmd.Process.Pid,
		kill: cmd.Process.Kill,
		done: make(chan struct{}),
	}
	s.current = p
	s.log.WithField("pid", p.pid).WithField("argv", c.Argv()).Info("analysis engine started")

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(p, stdout, sink)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(p, stderr, sink)
	}()

	// Pipes must be drained before Wait closes them.
	go func() {
		readers.Wait()
		s.exited(p, cmd.Wait())
		close(p.done)
	}()
	return p.pid, nil
}

func (s *Supervisor) readStdout(p *process, r io.Reader, sink event.Sink) {
	framer := stream.NewFramer(func(line string) {
		rec := stream.Classify(line)
		s.metrics.RecordClassified(s.managerID, string(rec.Kind()))

		p.dispatchMu.Lock()
		defer p.dispatchMu.Unlock()
		if p.stopped.Load() {
			return
		}
		Dispatch(s.handler, rec, sink)
	})

	if _, err := io.Copy(framer, r); err != nil {
		s.log.WithError(err).Debug("stdout read ended")
	}
	framer.Flush()
}

func (s *Supervisor) readStderr(p *process, r io.Reader, sink event.Sink) {
	br := bufio.NewReader(r)
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			s.log.WithField("stderr", text).Debug("analysis engine stderr")

			p.dispatchMu.Lock()
			if !p.stopped.Load() {
				s.handler.OnError(text, sink)
			}
			p.dispatchMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) exited(p *process, err error) {
	s.mu.Lock()
	owned := s.current == p && !p.stopped.Load()
	if owned {
		s.current = nil
		p.stopped.Store(true)
	}
	s.mu.Unlock()

	if !owned {
		s.log.WithField("pid", p.pid).Debug("stopped analysis engine reaped")
		return
	}

	entry := s.log.WithField("pid", p.pid)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("analysis engine exited")
	s.metrics.SubprocessExit(s.managerID)

	if s.onExit != nil {
		s.onExit(p.pid, err)
	}
}

// Stop kills the running subprocess, if any, and returns whether there was
// one. It does not wait for the process to exit. Calling Stop again is a no-op.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() bool {
	p := s.current
	if p == nil {
		return false
	}
	s.current = nil
	p.stopped.Store(true)
	// Let an in-flight delivery finish so nothing is emitted after Stop returns.
	p.dispatchMu.Lock()
	p.dispatchMu.Unlock()
	if err := p.kill(); err != nil {
		s.log.WithField("pid", p.pid).WithError(err).Debug("kill failed")
	} else {
		s.log.WithField("pid", p.pid).Info("analysis engine stopped")
	}
	return true
}

// Running reports whether a subprocess is currently owned.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// PID returns the running subprocess id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.pid
}

// Done returns a channel closed once the current subprocess has been reaped
// and the exit hook has returned, or nil when nothing is running.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.done
}

func (s *Supervisor) countingSink(sink event.Sink) event.Sink {
	return event.SinkFunc(func(ev event.Event) {
		s.metrics.EventEmitted(s.managerID, string(ev.Name))
		sink.Emit(ev)
	})
}
