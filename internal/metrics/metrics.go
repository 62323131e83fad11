// Package metrics exposes the Prometheus collectors for the draft
// coordinator: enough to watch session churn, action throughput, and
// how often captains run out the clock.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "draft"

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live draft sessions.",
	})

	ActionsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_committed_total",
		Help:      "Committed draft actions by kind.",
	}, []string{"action"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Rejected submissions by reason.",
	}, []string{"reason"})

	ResultsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "results_recorded_total",
		Help:      "Match results accepted by the bracket engine.",
	})

	DraftsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drafts_completed_total",
		Help:      "Draft sessions that reached completion.",
	})

	MatchesVoided = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_voided_total",
		Help:      "Sessions abandoned or aborted into a voided match.",
	})
)
