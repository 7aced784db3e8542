// Package metrics records pipeline counters for the supervisor, handlers and notifier.
package metrics

// Collector receives pipeline measurements. Implementations must be safe
// for concurrent use.
type Collector interface {
	// RecordClassified counts one framed line by record kind.
	RecordClassified(manager, kind string)

	// EventEmitted counts one UI event.
	EventEmitted(manager, event string)

	// AlertDebounced counts an alert dropped inside its debounce window.
	AlertDebounced(manager, category string)

	// Notification counts a webhook attempt by result ("ok" or "error").
	Notification(manager, result string)

	// SubprocessStart counts a spawn attempt by result ("ok" or "error").
	SubprocessStart(manager, result string)

	// SubprocessExit counts a subprocess that ended on its own.
	SubprocessExit(manager string)

	// ActiveSessions sets the number of live monitoring sessions.
	ActiveSessions(n int)
}

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result maps an error to ResultOK or ResultError.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordClassified(string, string) {}
func (Noop) EventEmitted(string, string)     {}
func (Noop) AlertDebounced(string, string)   {}
func (Noop) Notification(string, string)     {}
func (Noop) SubprocessStart(string, string)  {}
func (Noop) SubprocessExit(string)           {}
func (Noop) ActiveSessions(int)              {}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}
