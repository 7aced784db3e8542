// Package eternalcity handles analysis engine output for Eternal City.
package eternalcity

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/raidwatch/raidwatch/internal/countdown"
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/notify"
	"github.com/raidwatch/raidwatch/internal/stream"
)

const (
	// Domain is the "game" tag this handler accepts, and its manager id.
	Domain = "eternal-city"

	SubTypeRaidAlert     = "RAID_ALERT"
	SubTypeInvasionAlert = "INVASION_ALERT"
	SubTypeTimeSync      = "TIME_SYNC"

	// CategoryInvasion is the debounce bucket for invasion alerts.
	CategoryInvasion = "INVASION"

	DefaultDebounce        = 2000 * time.Millisecond
	DefaultWebhookUsername = "EternalCity Bot"
	RaidAlertTitle         = "🚨 **[Eternal City Raid Alert]**"

	ErrorPrefix = "Sniffer Error: "
)

// Handler implements engine.Handler for Eternal City.
type Handler struct {
	notifier notify.Notifier
	metrics  metrics.Collector
	now      func() time.Time
	debounce time.Duration
	log      *log.Entry

	mu        sync.Mutex
	webhook   notify.Target
	lastAlert map[string]time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotifier sets the webhook notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithWebhook sets the initial webhook target.
func WithWebhook(w notify.Target) Option {
	return func(h *Handler) { h.webhook = normalize(w) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithDebounce overrides the invasion alert window.
func WithDebounce(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.debounce = d
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(h *Handler) { h.metrics = metrics.OrNoop(m) }
}

// New creates a handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		metrics:   metrics.Noop{},
		now:       time.Now,
		debounce:  DefaultDebounce,
		webhook:   normalize(notify.Target{}),
		lastAlert: make(map[string]time.Time),
		log:       log.WithFields(log.Fields{"component": "handler", "manager": Domain}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetWebhook replaces the webhook target. Safe to call while running.
func (h *Handler) SetWebhook(w notify.Target) {
	h.mu.Lock()
	h.webhook = normalize(w)
	h.mu.Unlock()
}

// Webhook returns the current webhook target.
func (h *Handler) Webhook() notify.Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.webhook
}

func (h *Handler) OnRecord(rec stream.Structured, sink event.Sink) {
	if rec.Game() != Domain {
		return
	}

	switch rec.SubType() {
	case SubTypeRaidAlert:
		h.raidAlert(rec, sink)
		return
	case SubTypeInvasionAlert:
		h.invasionAlert(rec, sink)
		return
	case SubTypeTimeSync:
		if ts, ok := rec.Int64("server_time"); ok {
			sink.Emit(event.Event{Name: event.EntryTimer, Payload: countdown.Calculate(ts, h.now())})
			return
		}
		h.log.WithField("line", rec.Line).Debug("time sync without usable server_time")
	}

	sink.Emit(event.Log(rec.Content()))
}

func (h *Handler) OnRawRecord(rec stream.Raw, sink event.Sink) {
	sink.Emit(event.Log(rec.Text))
}

func (h *Handler) OnError(text string, sink event.Sink) {
	sink.Emit(event.Status(ErrorPrefix + text))
}

func (h *Handler) raidAlert(rec stream.Structured, sink event.Sink) {
	content, _ := rec.Value("content")
	sink.Emit(event.Event{
		Name: event.RaidDetected,
		Payload: event.RaidAlert{
			Content: content,
			Time:    h.now().Format("15:04:05"),
		},
	})

	wh := h.Webhook()
	if !wh.Enabled() || h.notifier == nil {
		return
	}
	h.log.Info("raid alert, notifying webhook")
	h.notifier.Go(Domain, wh.URL, notify.Payload{
		Content:  RaidAlertTitle + "\n" + text(content),
		Username: wh.Username,
	})
}

func (h *Handler) invasionAlert(rec stream.Structured, sink event.Sink) {
	now := h.now()
	if !h.accept(CategoryInvasion, now) {
		h.metrics.AlertDebounced(Domain, CategoryInvasion)
		h.log.Debug("invasion alert debounced")
		return
	}

	content, _ := rec.Value("content")
	serverTs, ok := rec.Value("server_ts")
	if !ok {
		serverTs, _ = rec.Value("server_time")
	}
	raw := rec.String("raw")
	if raw == "" {
		raw = rec.String("raw_hex")
	}

	sink.Emit(event.Event{
		Name: event.AnalysisLog,
		Payload: event.InvasionAlert{
			Type:      rec.SubType(),
			Content:   content,
			ServerTs:  serverTs,
			LocalTime: now.Format("15:04:05.000"),
			Raw:       raw,
		},
	})
}

// accept reports whether an alert in category at now falls outside the
// debounce window, and if so records it as the latest.
func (h *Handler) accept(category string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.lastAlert[category]; ok && now.Sub(last) < h.debounce {
		return false
	}
	h.lastAlert[category] = now
	return true
}

func normalize(w notify.Target) notify.Target {
	if w.Username == "" {
		w.Username = DefaultWebhookUsername
	}
	return w
}

func text(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
