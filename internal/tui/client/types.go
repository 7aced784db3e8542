// Package client provides WebSocket and HTTP clients for the raidwatch server.
// Types mirror the server wire protocol without importing server packages.
package client

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSnapshot       MessageType = "snapshot"
	MsgSessionStarted MessageType = "session_started"
	MsgSessionEnded   MessageType = "session_ended"
	MsgLogUpdate      MessageType = "log-update"
	MsgStatusUpdate   MessageType = "status-update"
	MsgRaidDetected   MessageType = "raid-detected"
	MsgAnalysisLog    MessageType = "analysis-log"
	MsgEntryTimer     MessageType = "entry-timer"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Seq       uint64          `json:"seq"`
	ManagerID string          `json:"managerId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Session status names.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusExited  = "exited"
	StatusFailed  = "failed"
)

// SessionState mirrors the server's session.State.
type SessionState struct {
	ID         string     `json:"id"`
	ManagerID  string     `json:"managerId"`
	Label      string     `json:"label,omitempty"`
	TargetPID  int32      `json:"targetPid"`
	TargetName string     `json:"targetName,omitempty"`
	EnginePID  int        `json:"enginePid,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	ExitError  string     `json:"exitError,omitempty"`
}

// Running reports whether the engine is still attached.
func (s *SessionState) Running() bool {
	return s.Status == StatusRunning
}

// SnapshotPayload is the full session list sent on connect and periodically.
type SnapshotPayload struct {
	Sessions []*SessionState `json:"sessions"`
}

// SessionPayload accompanies session_started and session_ended.
type SessionPayload struct {
	Session     *SessionState `json:"session"`
	ActiveCount int           `json:"activeCount"`
}

// Manager is one entry of GET /api/managers.
type Manager struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	ProcessKeywords []string `json:"processKeywords"`
}

// Process is one entry of GET /api/processes.
type Process struct {
	PID     int32  `json:"pid"`
	Name    string `json:"name"`
	CmdLine string `json:"cmdline,omitempty"`
}

// RaidAlert is the raid-detected payload.
type RaidAlert struct {
	Content json.RawMessage `json:"content"`
	Time    string          `json:"time"`
}

// InvasionAlert is the analysis-log payload.
type InvasionAlert struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	ServerTs  json.RawMessage `json:"serverTs"`
	LocalTime string          `json:"localTime"`
	Raw       string          `json:"raw"`
}

// EntryTime is the entry-timer payload.
type EntryTime struct {
	TargetTs         int64  `json:"targetTs"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	DisplayTime      string `json:"displayTime"`
	IsExpired        bool   `json:"isExpired"`
}

// Text renders a free-form JSON payload for display: strings are unquoted,
// anything else is shown as compact JSON.
func Text(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
