// Package metrics exposes the claim aggregate as Prometheus metrics and
// serves them together with health and readiness probes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

var (
	claimedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvcwatch_claimed_bytes",
		Help: "Sum of storage requested by tracked PersistentVolumeClaims.",
	})
	capacityLimitBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvcwatch_capacity_limit_bytes",
		Help: "Configured capacity limit for claimed storage.",
	})
	claimsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvcwatch_claims",
		Help: "Number of tracked PersistentVolumeClaims.",
	})
	overCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvcwatch_over_capacity",
		Help: "1 while claimed storage is at or above the limit, 0 otherwise.",
	})
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcwatch_events_total",
			Help: "Claim change events applied, by type.",
		},
		[]string{"type"},
	)
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcwatch_transitions_total",
			Help: "Capacity state transitions, by state entered.",
		},
		[]string{"to"},
	)
	inconsistentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcwatch_inconsistent_events_total",
			Help: "Events that did not match the claim table, by type.",
		},
		[]string{"type"},
	)
)

// SetSnapshot publishes the aggregate after seeding or after any event.
func SetSnapshot(total, limit quantity.Quantity, claims int, state types.AlertState) {
	claimedBytes.Set(total.Float64())
	capacityLimitBytes.Set(limit.Float64())
	claimsTracked.Set(float64(claims))
	if state == types.StateOverCapacity {
		overCapacity.Set(1)
	} else {
		overCapacity.Set(0)
	}
}

// Record counts one applied event and its side effects.
func Record(res aggregator.Result) {
	eventsTotal.WithLabelValues(string(res.Event.Type)).Inc()
	if res.Inconsistent != "" {
		inconsistentEventsTotal.WithLabelValues(string(res.Event.Type)).Inc()
	}
	if res.Transition != nil {
		transitionsTotal.WithLabelValues(string(res.Transition.To)).Inc()
	}
}
