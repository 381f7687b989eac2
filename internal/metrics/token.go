// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokenValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesad_token_validations_total",
		Help: "Total token validations by outcome (ok, invalid, expired)",
	}, []string{"outcome"})

	TokenRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesad_token_rotations_total",
		Help: "Total administrative token rotations",
	})
)

// IncTokenValidation records one validate call with its outcome.
func IncTokenValidation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	TokenValidationsTotal.WithLabelValues(outcome).Inc()
}
