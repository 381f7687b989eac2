// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_bus_published_total",
		Help: "Total envelopes accepted by the event bus",
	}, []string{"topic"})

	BusHandlerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_bus_handler_panics_total",
		Help: "Total handler panics isolated during fan-out",
	}, []string{"topic"})

	BusHistoryEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_bus_history_evicted_total",
		Help: "Total envelopes evicted from topic history buffers",
	}, []string{"topic"})

	BusReentrantRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_bus_reentrant_rejected_total",
		Help: "Total publishes rejected for same-topic re-entrancy",
	}, []string{"topic"})

	StreamDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_stream_dropped_total",
		Help: "Total envelopes dropped for slow streaming clients",
	}, []string{"topic"})
)

// IncBusPublished records an accepted publish for the given topic.
func IncBusPublished(topic string) {
	BusPublishedTotal.WithLabelValues(orUnknown(topic)).Inc()
}

// IncBusHandlerPanic records an isolated handler panic.
func IncBusHandlerPanic(topic string) {
	BusHandlerPanicsTotal.WithLabelValues(orUnknown(topic)).Inc()
}

// AddBusHistoryEvicted records n envelopes evicted from a topic buffer.
func AddBusHistoryEvicted(topic string, n int) {
	if n <= 0 {
		return
	}
	BusHistoryEvictedTotal.WithLabelValues(orUnknown(topic)).Add(float64(n))
}

// IncBusReentrantRejected records a failed-fast re-entrant publish.
func IncBusReentrantRejected(topic string) {
	BusReentrantRejectedTotal.WithLabelValues(orUnknown(topic)).Inc()
}

// IncStreamDropped records an envelope dropped on a slow stream connection.
func IncStreamDropped(topic string) {
	StreamDroppedTotal.WithLabelValues(orUnknown(topic)).Inc()
}

func orUnknown(topic string) string {
	if topic == "" {
		return "unknown"
	}
	return topic
}
