// Package metrics exposes plant activity as Prometheus collectors.
//
// Collectors live in a private registry rather than the global default so
// several plants (and tests) can coexist in one process. Counters are fed
// by subscribing to the plant notification streams; see Attach.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/pubsub"
	"github.com/roach88/meltshop/internal/session"
)

// Metrics holds every meltshop collector.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	alertsTriggered    *prometheus.CounterVec
	alertsAcknowledged prometheus.Counter
	alertsPending      prometheus.Gauge
	eventsCreated      prometheus.Counter
	sessionsStarted    prometheus.Counter
	sessionsCompleted  prometheus.Counter
	sessionsActive     prometheus.Gauge
	machineWeight      *prometheus.GaugeVec
	forwarded          *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meltshop_http_requests_total",
			Help: "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meltshop_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		alertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meltshop_alerts_triggered_total",
			Help: "Alerts raised, by subject machine.",
		}, []string{"machine"}),
		alertsAcknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meltshop_alerts_acknowledged_total",
			Help: "Alerts moved from pending to acknowledged.",
		}),
		alertsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meltshop_alerts_pending",
			Help: "Alerts currently pending.",
		}),
		eventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meltshop_events_created_total",
			Help: "Events appended to the event log.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meltshop_sessions_started_total",
			Help: "Melting sessions started.",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meltshop_sessions_completed_total",
			Help: "Melting sessions completed, including recorded ones.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meltshop_sessions_active",
			Help: "Melting sessions currently active.",
		}),
		machineWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meltshop_machine_weight",
			Help: "Current metal weight held by a machine.",
		}, []string{"machine"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meltshop_forwarded_total",
			Help: "Notifications forwarded to the broker, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.alertsTriggered,
		m.alertsAcknowledged,
		m.alertsPending,
		m.eventsCreated,
		m.sessionsStarted,
		m.sessionsCompleted,
		m.sessionsActive,
		m.machineWeight,
		m.forwarded,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SetWeight records the current weight of a machine.
func (m *Metrics) SetWeight(machine string, weight float64) {
	if m == nil {
		return
	}
	m.machineWeight.WithLabelValues(machine).Set(weight)
}

// Forwarded counts one forwarding attempt.
func (m *Metrics) Forwarded(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.forwarded.WithLabelValues(result).Inc()
}

// Attach subscribes the counters to the plant streams. The returned
// subscriptions stop the feed when cancelled.
//
// Callbacks run on the publishing goroutine, so the active-session gauge
// can read the registry directly.
func (m *Metrics) Attach(alerts *alert.Log, events *eventlog.Log, sessions *session.Registry) []*pubsub.Subscription {
	return []*pubsub.Subscription{
		alerts.Stream(func(n alert.Notification) {
			switch n.Type {
			case alert.NotifyCreated:
				m.alertsTriggered.WithLabelValues(n.Record.Subject).Inc()
				m.alertsPending.Inc()
			case alert.NotifyAcknowledged:
				m.alertsAcknowledged.Inc()
				m.alertsPending.Dec()
			}
		}),
		events.Stream(func(eventlog.Notification) {
			m.eventsCreated.Inc()
		}),
		sessions.Stream(func(n session.Notification) {
			switch n.Type {
			case session.NotifyStarted:
				m.sessionsStarted.Inc()
			case session.NotifyCompleted:
				m.sessionsCompleted.Inc()
			}
			m.sessionsActive.Set(float64(countActive(sessions)))
		}),
	}
}

func countActive(r *session.Registry) int {
	n := 0
	for _, s := range r.All() {
		if s.Active() {
			n++
		}
	}
	return n
}
