// Package observability wires tracing and the domain metrics of the score
// pipeline. Collectors are package-level, registered once in init, and safe
// for concurrent use. Label sets are closed enums to keep cardinality fixed.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes used as the "outcome" label of ScoreSubmissions.
const (
	OutcomeApplied    = "applied"
	OutcomeReplayed   = "replayed"
	OutcomePending    = "pending"
	OutcomeRejected   = "rejected"
	OutcomeBusy       = "busy"
	OutcomeFailed     = "failed"
	ReadSourceIndex   = "index"
	ReadSourceLedger  = "ledger"
	ReconcileClean    = "clean"
	ReconcileRebuilt  = "rebuilt"
	ReconcileErrored  = "error"
	ReconcileRepaired = "repaired"
)

var (
	// ScoreSubmissions counts finished submissions by outcome.
	ScoreSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_submissions_total",
			Help: "Score submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// LedgerApplySeconds observes the duration of the ledger transaction,
	// lock wait included.
	LedgerApplySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_apply_seconds",
			Help:    "Duration of score ledger mutations in seconds.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	ProjectorDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_dropped_total",
		Help: "Index updates dropped because the projector queue was full.",
	})

	ProjectorFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_failures_total",
		Help: "Index updates abandoned after exhausting retries.",
	})

	// ReconcilerRuns counts reconciler passes by result.
	ReconcilerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Reconciler passes by result.",
		},
		[]string{"result"},
	)

	// ReconcilerDrift counts passes whose mismatches exceeded the tolerance.
	ReconcilerDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_drift_total",
		Help: "Reconciler passes that detected drift beyond tolerance.",
	})

	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_subscribers",
		Help: "Currently connected live leaderboard subscribers.",
	})

	// StreamDropped counts events lost to slow subscribers, by overflow policy.
	StreamDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_dropped_total",
			Help: "Events dropped or subscriptions closed due to full buffers.",
		},
		[]string{"policy"},
	)

	// LeaderboardReads counts leaderboard reads by serving store.
	LeaderboardReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_reads_total",
			Help: "Leaderboard reads by source (index or ledger fallback).",
		},
		[]string{"source"},
	)

	MarkersPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumed_markers_pruned_total",
		Help: "Expired consumed-token markers deleted.",
	})
)

func init() {
	prometheus.MustRegister(
		ScoreSubmissions,
		LedgerApplySeconds,
		ProjectorDropped,
		ProjectorFailures,
		ReconcilerRuns,
		ReconcilerDrift,
		StreamSubscribers,
		StreamDropped,
		LeaderboardReads,
		MarkersPruned,
	)
}
