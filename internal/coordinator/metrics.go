package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// Metrics exposes coordinator activity to Prometheus. A nil *Metrics is a
// valid no-op receiver.
type Metrics struct {
	polls     *prometheus.CounterVec
	triggers  *prometheus.CounterVec
	scans     *prometheus.CounterVec
	changes   prometheus.Counter
	interval  prometheus.Gauge
	activity  prometheus.Gauge
	connected prometheus.Gauge
}

// NewMetrics creates and registers coordinator metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_polls_total",
			Help: "Remote summary polls by result.",
		}, []string{"result"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_triggers_total",
			Help: "Trigger gate decisions by outcome.",
		}, []string{"decision"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_scans_total",
			Help: "Local scan invocations by result.",
		}, []string{"result"}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_change_events_total",
			Help: "Change events detected across all polls.",
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_poll_interval_seconds",
			Help: "Current computed poll interval.",
		}),
		activity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_activity_level",
			Help: "Current activity level (0=IDLE, 3=HIGH).",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_remote_connected",
			Help: "Remote gateway connectivity flag.",
		}),
	}

	reg.MustRegister(m.polls, m.triggers, m.scans, m.changes, m.interval, m.activity, m.connected)
	return m
}

func (m *Metrics) observePoll(success bool, eventCount int) {
	if m == nil {
		return
	}
	if success {
		m.polls.WithLabelValues("success").Inc()
	} else {
		m.polls.WithLabelValues("failure").Inc()
	}
	m.changes.Add(float64(eventCount))
}

func (m *Metrics) observeDecision(d models.Decision) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) observeScan(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.scans.WithLabelValues("failure").Inc()
	} else {
		m.scans.WithLabelValues("success").Inc()
	}
}

func (m *Metrics) observeState(level models.ActivityLevel, intervalSeconds float64, connected bool) {
	if m == nil {
		return
	}
	m.activity.Set(float64(level))
	m.interval.Set(intervalSeconds)
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
