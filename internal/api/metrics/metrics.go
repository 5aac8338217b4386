// Package metrics defines and registers all custom Prometheus metrics for the
// attendance API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package init
// via promauto; the /metrics route exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

// ── Check-in metrics ──────────────────────────────────────────────────────────

// CheckInsTotal counts terminal check-in outcomes.
// Labels:
//   - method: "manual", "virtual_nfc", "physical_nfc" or "qr"
//   - status: "success", "rejected" or "replayed"
var CheckInsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_total",
		Help:      "Total number of check-in submissions, by method and outcome.",
	},
	[]string{"method", "status"},
)

// CheckInRejectionsTotal counts rejected submissions.
// Label:
//   - reason: e.g. "token_not_owned", "token_inactive", "invalid", "store_error"
var CheckInRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkin_rejections_total",
		Help:      "Total number of check-in submissions rejected, by reason.",
	},
	[]string{"reason"},
)

// CheckInDedupTotal counts deduplication decisions.
// Labels:
//   - result: "hit" (replayed prior event) or "miss" (new event appended)
//   - source: "cache" (redis fast path) or "store" (ledger conditional write)
var CheckInDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkin_dedup_total",
		Help:      "Total number of deduplication checks, labelled by result and source.",
	},
	[]string{"result", "source"},
)

// CheckInDuration measures a submission from validation to append.
// Label:
//   - status: "success", "rejected", "replayed" or "error"
var CheckInDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkin_duration_seconds",
		Help:      "Duration of check-in submission from validation to persistence.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"status"},
)

// TouchFailuresTotal counts best-effort last-used updates that failed.
var TouchFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_touch_failures_total",
		Help:      "Total number of last-used timestamp updates that failed.",
	},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensRegisteredTotal counts tokens written to the identity store.
// Label:
//   - kind: "physical" or "virtual"
var TokensRegisteredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_registered_total",
		Help:      "Total number of tokens registered, by kind.",
	},
	[]string{"kind"},
)

// TokenConflictsTotal counts registrations refused because the id was taken.
// Label:
//   - kind: "physical" or "virtual"
var TokenConflictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_conflicts_total",
		Help:      "Total number of registrations refused because the token id already exists.",
	},
	[]string{"kind"},
)

// IssuanceExhaustedTotal counts virtual issuance that ran out of attempts.
var IssuanceExhaustedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_issuance_exhausted_total",
		Help:      "Total number of virtual token issuances that exhausted their retry budget.",
	},
)

// ── Scan metrics ──────────────────────────────────────────────────────────────

// ScansProcessedTotal counts reader scans handled by the dispatcher.
// Label:
//   - result: "checked_in", "replayed", "unknown_token" or "error"
var ScansProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_processed_total",
		Help:      "Total number of reader scans processed, by result.",
	},
	[]string{"result"},
)

// ScanQueueDepth tracks the current number of scans waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var ScanQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scan_queue_depth",
		Help:      "Current number of scans pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
