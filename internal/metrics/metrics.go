// Package metrics provides Prometheus metrics for the chat sync client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReducerActions counts actions applied by the store, by action type.
	ReducerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_reducer_actions_total",
			Help: "Total number of actions applied by the reconciliation reducer",
		},
		[]string{"action"},
	)

	// MessagesMerged counts incoming messages that matched an existing entry.
	MessagesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_merged_total",
			Help: "Total number of incoming messages reconciled into an existing entry",
		},
		[]string{"rule"},
	)

	// PayloadsDropped counts malformed payloads rejected before reaching the store.
	PayloadsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_payloads_dropped_total",
			Help: "Total number of malformed inbound payloads dropped",
		},
		[]string{"source"},
	)

	// Sends counts send pipeline outcomes.
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Total number of send attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SendDuration tracks the HTTP round trip of a send.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatsync_send_duration_seconds",
			Help:    "Duration of message send requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconnectAttempts counts realtime reconnection attempts.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Total number of realtime reconnection attempts",
		},
	)

	// ConnectionState is 0 disconnected, 1 connecting, 2 connected.
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Current realtime connection state",
		},
	)
)

// RecordSend increments the send outcome counter.
func RecordSend(outcome string) {
	Sends.WithLabelValues(outcome).Inc()
}

// RecordDropped increments the dropped payload counter for source.
func RecordDropped(source string) {
	PayloadsDropped.WithLabelValues(source).Inc()
}
