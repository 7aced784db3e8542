// Package procscan lists local processes and picks monitoring targets by keyword.
package procscan

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// Process is one entry of the process list.
type Process struct {
	PID       int32     `json:"pid"`
	Name      string    `json:"name"`
	CmdLine   string    `json:"cmdline,omitempty"`
	StartTime time.Time `json:"startTime,omitempty"`
}

// Lister is the process table the monitor consults.
type Lister interface {
	List(ctx context.Context) ([]Process, error)
	Lookup(ctx context.Context, pid int32) (Process, bool, error)
}

// Scanner reads the host process table.
type Scanner struct{}

func New() *Scanner {
	return &Scanner{}
}

// List returns every readable process ordered by name, then pid. Processes
// that vanish or deny access mid-scan are skipped.
func (s *Scanner) List(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing processes")
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		info, ok := describe(ctx, p)
		if !ok {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].PID < out[j].PID
	})
	return out, nil
}

// Lookup returns the process with pid, and false if it does not exist.
func (s *Scanner) Lookup(ctx context.Context, pid int32) (Process, bool, error) {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return Process{}, false, errors.Wrapf(err, "checking pid %d", pid)
	}
	if !exists {
		return Process{}, false, nil
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Process{PID: pid}, true, nil
	}
	info, ok := describe(ctx, p)
	if !ok {
		return Process{PID: pid}, true, nil
	}
	return info, true, nil
}

func describe(ctx context.Context, p *process.Process) (Process, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil || name == "" {
		return Process{}, false
	}
	info := Process{PID: p.Pid, Name: name}
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		info.CmdLine = cmdline
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.StartTime = time.UnixMilli(ms)
	}
	return info, true
}

// Match reports the index of the first keyword that p matches, or -1.
// Keywords are compared case-insensitively against the process name and
// the base name of its executable.
func Match(p Process, keywords []string) int {
	name := strings.ToLower(p.Name)
	exe := ""
	if fields := strings.Fields(p.CmdLine); len(fields) > 0 {
		exe = strings.ToLower(filepath.Base(fields[0]))
	}
	for i, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(name, kw) || (exe != "" && strings.Contains(exe, kw)) {
			return i
		}
	}
	return -1
}

// Filter keeps the processes matching any keyword, ordered by which
// keyword they matched first and then by pid.
func Filter(procs []Process, keywords []string) []Process {
	type ranked struct {
		p    Process
		rank int
	}
	var matches []ranked
	for _, p := range procs {
		if r := Match(p, keywords); r >= 0 {
			matches = append(matches, ranked{p, r})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].p.PID < matches[j].p.PID
	})

	out := make([]Process, len(matches))
	for i, m := range matches {
		out[i] = m.p
	}
	return out
}

// Best returns the strongest keyword match, if any.
func Best(procs []Process, keywords []string) (Process, bool) {
	matches := Filter(procs, keywords)
	if len(matches) == 0 {
		return Process{}, false
	}
	return matches[0], true
}
