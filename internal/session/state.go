package session

import (
	"encoding/json"
	"time"
)

type Status int

const (
	Running Status = iota
	Stopped
	Exited
	Failed
)

var statusNames = map[Status]string{
	Running: "running",
	Stopped: "stopped",
	Exited:  "exited",
	Failed:  "failed",
}

var statusFromName = map[string]Status{
	"running": Running,
	"stopped": Stopped,
	"exited":  Exited,
	"failed":  Failed,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// State describes one monitoring session: an analysis engine attached to a
// target game process on behalf of a manager.
type State struct {
	ID         string     `json:"id"`
	ManagerID  string     `json:"managerId"`
	Label      string     `json:"label,omitempty"`
	TargetPID  int32      `json:"targetPid"`
	TargetName string     `json:"targetName,omitempty"`
	EnginePID  int        `json:"enginePid,omitempty"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	ExitError  string     `json:"exitError,omitempty"`
}

// Clone returns a deep copy of the State.
func (s *State) Clone() *State {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// End marks the session finished with status at t.
func (s *State) End(status Status, t time.Time, err error) {
	s.Status = status
	s.EndedAt = &t
	if err != nil {
		s.ExitError = err.Error()
	}
}

func (s *State) IsTerminal() bool {
	return s.Status != Running
}

// Uptime is how long the session ran, measured to now while it is running.
func (s *State) Uptime(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}
