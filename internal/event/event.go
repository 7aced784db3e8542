// Package event defines the named events a domain handler emits toward the UI.
package event

import "sync"

// Name identifies a UI event channel.
type Name string

const (
	LogUpdate    Name = "log-update"
	StatusUpdate Name = "status-update"
	RaidDetected Name = "raid-detected"
	AnalysisLog  Name = "analysis-log"
	EntryTimer   Name = "entry-timer"
)

// Event is one emission on the UI channel.
type Event struct {
	Name      Name   `json:"type"`
	ManagerID string `json:"managerId,omitempty"`
	Payload   any    `json:"payload"`
}

// Sink receives UI events. Emit must not block for long; it runs on the
// subprocess output goroutine.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// RaidAlert is the raid-detected payload.
type RaidAlert struct {
	Content any    `json:"content"`
	Time    string `json:"time"`
}

// InvasionAlert is the analysis-log payload for an accepted invasion alert.
type InvasionAlert struct {
	Type      string `json:"type"`
	Content   any    `json:"content"`
	ServerTs  any    `json:"serverTs"`
	LocalTime string `json:"localTime"`
	Raw       string `json:"raw"`
}

// EntryTime is the entry-timer payload.
type EntryTime struct {
	TargetTs         int64  `json:"targetTs"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	DisplayTime      string `json:"displayTime"`
	IsExpired        bool   `json:"isExpired"`
}

// Log builds a log-update event.
func Log(content any) Event {
	return Event{Name: LogUpdate, Payload: content}
}

// Status builds a status-update event.
func Status(message string) Event {
	return Event{Name: StatusUpdate, Payload: message}
}

// Tagged wraps a Sink so every event carries managerID.
func Tagged(managerID string, sink Sink) Sink {
	return SinkFunc(func(ev Event) {
		if ev.ManagerID == "" {
			ev.ManagerID = managerID
		}
		sink.Emit(ev)
	})
}

// Recorder is an in-memory Sink, handy for tests and the CLI.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name Name) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
