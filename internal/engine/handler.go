// Package engine runs an analysis subprocess and feeds its output to a Handler.
package engine

import (
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/stream"
)

// Handler turns engine output into UI events for one game.
//
// A Supervisor calls at most one Handler method at a time for a given
// subprocess, but the same Handler may outlive many subprocesses.
type Handler interface {
	// OnRecord receives every line that decoded as a JSON object.
	OnRecord(rec stream.Structured, sink event.Sink)

	// OnRawRecord receives every other non-blank line.
	OnRawRecord(rec stream.Raw, sink event.Sink)

	// OnError receives stderr output verbatim.
	OnError(text string, sink event.Sink)
}

// Dispatch routes rec to the matching Handler method.
func Dispatch(h Handler, rec stream.Record, sink event.Sink) {
	switch r := rec.(type) {
	case stream.Structured:
		h.OnRecord(r, sink)
	case stream.Raw:
		h.OnRawRecord(r, sink)
	}
}
