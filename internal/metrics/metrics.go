package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Prometheus implements the hub's Metrics hooks on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	sessions    prometheus.Gauge
	usersOnline prometheus.Gauge
	delivered   prometheus.Counter
	recipients  prometheus.Histogram
	sendFailed  *prometheus.CounterVec
	unread      prometheus.Counter
}

// New registers the chat collectors plus the Go runtime and process collectors.
func New() *Prometheus {
	reg := prometheus.NewRegistry()

	m := &Prometheus{
		registry: reg,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of connected sessions.",
		}),
		usersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_online",
			Help:      "Number of users with at least one session.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages persisted and fanned out.",
		}),
		recipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_recipients",
			Help:      "Live sessions reached per delivered message.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		sendFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Rejected or failed sends by error code.",
		}, []string{"code"}),
		unread: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unread_recorded_total",
			Help:      "Unread entries recorded for members not watching the conversation.",
		}),
	}

	reg.MustRegister(
		m.sessions,
		m.usersOnline,
		m.delivered,
		m.recipients,
		m.sendFailed,
		m.unread,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

func (m *Prometheus) SessionOpened() { m.sessions.Inc() }

func (m *Prometheus) SessionClosed() { m.sessions.Dec() }

func (m *Prometheus) UsersOnline(n int) { m.usersOnline.Set(float64(n)) }

func (m *Prometheus) UnreadRecorded() { m.unread.Inc() }

func (m *Prometheus) SendFailed(code string) {
	m.sendFailed.WithLabelValues(code).Inc()
}

func (m *Prometheus) MessageDelivered(recipients int) {
	m.delivered.Inc()
	m.recipients.Observe(float64(recipients))
}
