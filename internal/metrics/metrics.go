// Package metrics exposes prometheus collectors for the chat engine and the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	EventsReceived    *prometheus.CounterVec
	EchoesSuppressed  prometheus.Counter
	Rollbacks         *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	Unread            prometheus.Gauge

	RelayClients    prometheus.Gauge
	RelayBroadcasts *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkie",
			Name:      "realtime_events_received_total",
			Help:      "Realtime events received by the client, by type.",
		}, []string{"type"}),
		EchoesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "talkie",
			Name:      "echoes_suppressed_total",
			Help:      "Inbound update/delete events dropped because a local mutation was pending.",
		}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkie",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic mutations rolled back after a failed request, by operation.",
		}, []string{"op"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "talkie",
			Name:      "realtime_reconnect_attempts_total",
			Help:      "Realtime reconnection attempts.",
		}),
		Unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talkie",
			Name:      "unread_messages",
			Help:      "Current unread counter of the workspace chat.",
		}),
		RelayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talkie",
			Subsystem: "relay",
			Name:      "connected_clients",
			Help:      "Websocket clients connected to the relay.",
		}),
		RelayBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkie",
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Events broadcast by the relay, by type.",
		}, []string{"type"}),
	}

	m.Registry.MustRegister(
		m.EventsReceived,
		m.EchoesSuppressed,
		m.Rollbacks,
		m.ReconnectAttempts,
		m.Unread,
		m.RelayClients,
		m.RelayBroadcasts,
	)
	return m
}

func (m *Metrics) EventReceived(eventType string) {
	if m != nil {
		m.EventsReceived.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EchoSuppressed() {
	if m != nil {
		m.EchoesSuppressed.Inc()
	}
}

func (m *Metrics) RolledBack(op string) {
	if m != nil {
		m.Rollbacks.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Reconnecting() {
	if m != nil {
		m.ReconnectAttempts.Inc()
	}
}

func (m *Metrics) SetUnread(n int) {
	if m != nil {
		m.Unread.Set(float64(n))
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.RelayClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.RelayClients.Dec()
	}
}

func (m *Metrics) Broadcast(eventType string) {
	if m != nil {
		m.RelayBroadcasts.WithLabelValues(eventType).Inc()
	}
}
