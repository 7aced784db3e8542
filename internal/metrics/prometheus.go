package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Collector on a private registry.
type Prometheus struct {
	records          *prometheus.CounterVec
	events           *prometheus.CounterVec
	debounced        *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	subprocessStarts *prometheus.CounterVec
	subprocessExits  *prometheus.CounterVec
	activeSessions   prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheus creates a collector whose metric names start with namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "raidwatch"
	}

	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of engine output lines by record kind",
		},
		[]string{"manager", "kind"},
	)

	p.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of UI events emitted",
		},
		[]string{"manager", "event"},
	)

	p.debounced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_debounced_total",
			Help:      "Total number of alerts dropped inside the debounce window",
		},
		[]string{"manager", "category"},
	)

	p.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of webhook notifications by result",
		},
		[]string{"manager", "result"},
	)

	p.subprocessStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subprocess_starts_total",
			Help:      "Total number of analysis engine spawn attempts",
		},
		[]string{"manager", "result"},
	)

	p.subprocessExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subprocess_exits_total",
			Help:      "Total number of analysis engines that exited on their own",
		},
		[]string{"manager"},
	)

	p.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of monitoring sessions",
		},
	)

	p.registry.MustRegister(
		p.records,
		p.events,
		p.debounced,
		p.notifications,
		p.subprocessStarts,
		p.subprocessExits,
		p.activeSessions,
	)

	return p
}

func (p *Prometheus) RecordClassified(manager, kind string) {
	p.records.WithLabelValues(manager, kind).Inc()
}

func (p *Prometheus) EventEmitted(manager, event string) {
	p.events.WithLabelValues(manager, event).Inc()
}

func (p *Prometheus) AlertDebounced(manager, category string) {
	p.debounced.WithLabelValues(manager, category).Inc()
}

func (p *Prometheus) Notification(manager, result string) {
	p.notifications.WithLabelValues(manager, result).Inc()
}

func (p *Prometheus) SubprocessStart(manager, result string) {
	p.subprocessStarts.WithLabelValues(manager, result).Inc()
}

func (p *Prometheus) SubprocessExit(manager string) {
	p.subprocessExits.WithLabelValues(manager).Inc()
}

func (p *Prometheus) ActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
