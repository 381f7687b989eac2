// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors shared across components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_sessions_created_total",
		Help: "Total guest sessions created",
	})

	SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_sessions_expired_total",
		Help: "Total guest sessions that transitioned to expired",
	})

	SessionsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_sessions_closed_total",
		Help: "Total guest sessions closed explicitly",
	})

	SessionsExtendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_sessions_extended_total",
		Help: "Total guest session extensions",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesad_sessions_active",
		Help: "Guest sessions currently active (freshness evaluated at sweep/read)",
	})

	SessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_sessions_swept_total",
		Help: "Total terminal sessions pruned by the background sweeper",
	})
)
