package session

// EventType classifies session lifecycle events.
type EventType int

const (
	EventStarted EventType = iota // engine spawned for a manager
	EventEnded                    // stopped, exited, or failed to start
)

// Event carries a session state snapshot to observers.
type Event struct {
	Type        EventType
	State       *State // snapshot (safe to retain)
	ActiveCount int    // running sessions at event time
}
