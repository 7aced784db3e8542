// Package mock provides a stand-in analysis engine for development. It
// writes the same kind of line stream a packet sniffer would, without
// needing capture privileges or a running game client.
package mock

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval = time.Second
	defaultGame     = "eternal-city"
)

// Engine emits a fixed cycle of engine output lines, one per tick.
type Engine struct {
	out      io.Writer
	interval time.Duration
	game     string
	target   string
	now      func() time.Time
	log      *log.Entry
}

type Option func(*Engine)

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithGame sets the domain tag written on structured lines.
func WithGame(game string) Option {
	return func(e *Engine) { e.game = game }
}

// WithTarget sets the pid reported in the startup banner.
func WithTarget(pid string) Option {
	return func(e *Engine) { e.target = pid }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(out io.Writer, opts ...Option) *Engine {
	e := &Engine{
		out:      out,
		interval: DefaultInterval,
		game:     defaultGame,
		target:   "0",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = log.WithFields(log.Fields{"component": "mock-engine", "game": e.game})
	return e
}

// Line returns the output for tick n. The cycle repeats every Cycle ticks.
func (e *Engine) Line(n int) string {
	now := e.now()
	ts := now.Unix()

	switch n % Cycle {
	case 0:
		return fmt.Sprintf("Sniffer started on PID %s", e.target)
	case 1:
		return e.record("STATUS", map[string]any{"content": "Sniffing on ports: [7001, 7002]"})
	case 2:
		return e.record("TIME_SYNC", map[string]any{"server_time": ts - 30})
	case 3:
		return e.record("INVASION_ALERT", map[string]any{
			"content":   "Invasion force sighted at the west gate",
			"server_ts": ts,
			"raw_hex":   packet(ts),
		})
	case 4:
		// Repeats case 3 inside the debounce window.
		return e.record("INVASION_ALERT", map[string]any{
			"content":   "Invasion force sighted at the west gate",
			"server_ts": ts,
			"raw_hex":   packet(ts),
		})
	case 5:
		return "heartbeat ok"
	case 6:
		return e.record("RAID_ALERT", map[string]any{"content": "Raid boss has appeared in the central plaza"})
	default:
		return e.record("STATUS", map[string]any{"content": map[string]any{"captured": n, "dropped": 0}})
	}
}

// Cycle is the number of distinct lines Line produces.
const Cycle = 8

// Run writes one line per interval until ctx is done or the writer fails.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.WithField("interval", e.interval).Info("mock engine started")
	for n := 0; ; n++ {
		if _, err := fmt.Fprintln(e.out, e.Line(n)); err != nil {
			return errors.Wrap(err, "writing mock output")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) record(subType string, extra map[string]any) string {
	fields := map[string]any{"game": e.game, "sub_type": subType}
	for k, v := range extra {
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf("mock marshal error: %v", err)
	}
	return string(b)
}

// packet renders a system packet the way the capture plugin frames one:
// a two byte header, a big-endian timestamp and trailing filler.
func packet(ts int64) string {
	b := []byte{0x16, 0x00, byte(ts >> 24), byte(ts >> 16), byte(ts >> 8), byte(ts),
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	return hex.EncodeToString(b)
}
