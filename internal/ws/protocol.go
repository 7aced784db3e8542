package ws

import (
	"github.com/raidwatch/raidwatch/internal/session"
)

// Message types that are not engine events. Engine events use their event
// name ("log-update", "raid-detected", ...) as the type.
const (
	MsgSnapshot       = "snapshot"
	MsgSessionStarted = "session_started"
	MsgSessionEnded   = "session_ended"
)

type WSMessage struct {
	Type      string      `json:"type"`
	Seq       uint64      `json:"seq"`
	ManagerID string      `json:"managerId,omitempty"`
	Payload   interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*session.State `json:"sessions"`
}

type SessionPayload struct {
	Session     *session.State `json:"session"`
	ActiveCount int            `json:"activeCount"`
}

// StartRequest is the body of POST /api/managers/{id}/start.
type StartRequest struct {
	PIDs []int32 `json:"pids"`
}
