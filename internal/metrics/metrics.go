package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainsync",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainsync",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Sheet watcher metrics ──────────────────────────────────────────────

var (
	SheetPolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "watch",
		Name:      "polls_total",
		Help:      "Total trigger-column polls against the sheet.",
	})

	SheetPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "watch",
		Name:      "poll_errors_total",
		Help:      "Total trigger polls that failed to read the sheet.",
	})

	TriggerEdits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "watch",
		Name:      "trigger_edits_total",
		Help:      "Total debounced trigger edits dispatched for resolution.",
	})
)

// ── Resolution metrics ─────────────────────────────────────────────────

var (
	ResolutionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "started_total",
		Help:      "Total resolutions started, by submission reason.",
	}, []string{"reason"})

	ResolutionsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "coalesced_total",
		Help:      "Total submissions folded into a resolution already in flight.",
	})

	ActiveResolutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "active",
		Help:      "Number of resolutions currently in flight.",
	})

	ResolutionsAllFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "all_failed_total",
		Help:      "Total rounds in which every provider failed.",
	})

	ResolutionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "retries_total",
		Help:      "Total backoff retries after an all-provider failure.",
	})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "duration_seconds",
		Help:      "End-to-end resolution duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	ResolveCompleteness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainsync",
		Subsystem: "resolve",
		Name:      "completeness",
		Help:      "Completeness of the most recent resolution per chain.",
	}, []string{"chain"})
)

// ── Provider client metrics ────────────────────────────────────────────

var (
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainsync",
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "Duration of provider fetch attempts in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"provider"})

	ProviderSuccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "provider",
		Name:      "success_total",
		Help:      "Total successful provider attempts.",
	}, []string{"provider"})

	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "provider",
		Name:      "failures_total",
		Help:      "Total failed provider attempts, by error kind.",
	}, []string{"provider", "kind"})
)

// ── Sheet commit metrics ───────────────────────────────────────────────

var (
	Commits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "sheet",
		Name:      "commits_total",
		Help:      "Total records committed to the sheet.",
	})

	CommitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "sheet",
		Name:      "commit_retries_total",
		Help:      "Total immediate retries of a failed commit.",
	})

	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "sheet",
		Name:      "commit_failures_total",
		Help:      "Total commits abandoned after the retry also failed.",
	})
)

// ── Alert delivery metrics ─────────────────────────────────────────────

var (
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total alerts successfully delivered.",
	}, []string{"kind"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Total alert delivery failures.",
	}, []string{"kind"})

	AlertsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainsync",
		Subsystem: "alerts",
		Name:      "deduplicated_total",
		Help:      "Total alerts suppressed by deduplication.",
	}, []string{"kind"})
)
