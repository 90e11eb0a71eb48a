package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Session metrics
	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsEvicted *prometheus.CounterVec // by reason

	// Channel metrics
	activeChannels prometheus.Gauge

	// Message metrics
	messagesSent       prometheus.Counter
	messagesSuppressed prometheus.Counter
	packetsReceived    *prometheus.CounterVec // by opcode

	// Abuse metrics
	revocations prometheus.Counter
}

// NewMetrics creates a new metrics instance registered against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatserver_active_sessions",
				Help: "Current number of connected sessions",
			},
		),
		sessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsEvicted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatserver_sessions_evicted_total",
				Help: "Total number of sessions removed by reason",
			},
			[]string{"reason"}, // "closed", "auth", "forced", "duplicate"
		),
		activeChannels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatserver_active_channels",
				Help: "Current number of live channels",
			},
		),
		messagesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_messages_sent_total",
				Help: "Total number of channel messages delivered",
			},
		),
		messagesSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_messages_suppressed_total",
				Help: "Total number of channel messages suppressed by rate limiting",
			},
		),
		packetsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatserver_packets_received_total",
				Help: "Total number of inbound packets by opcode",
			},
			[]string{"opcode"},
		),
		revocations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatserver_revocations_total",
				Help: "Total number of chat revocations persisted",
			},
		),
	}
}

func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) RecordSessionEvicted(reason string) {
	if m == nil {
		return
	}
	m.sessionsEvicted.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

func (m *Metrics) RecordChannelCreated() {
	if m == nil {
		return
	}
	m.activeChannels.Inc()
}

func (m *Metrics) RecordChannelDestroyed() {
	if m == nil {
		return
	}
	m.activeChannels.Dec()
}

func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordMessageSuppressed() {
	if m == nil {
		return
	}
	m.messagesSuppressed.Inc()
}

func (m *Metrics) RecordPacketReceived(opcode string) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(opcode).Inc()
}

func (m *Metrics) RecordRevocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}
