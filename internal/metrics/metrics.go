package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nuggets_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Ledger metrics
	CodonsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nuggets_codons_created_total",
			Help: "Total codons appended to strands",
		},
	)

	OutcomesSet = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nuggets_outcomes_set_total",
			Help: "Total outcome updates applied",
		},
	)

	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_queries_total",
			Help: "Total codon queries",
		},
		[]string{"cache"}, // "hit", "miss" or "bypass"
	)

	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_gate_rejections_total",
			Help: "Credentials rejected by the identity gate",
		},
		[]string{"surface"}, // "api" or "ws"
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_cache_errors_total",
			Help: "Query cache backend failures (swallowed)",
		},
		[]string{"op"},
	)

	// Fanout metrics
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nuggets_ws_active_subscriptions",
			Help: "Live connections bound to a session",
		},
	)

	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nuggets_ws_messages_delivered_total",
			Help: "Push messages queued to subscribers",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nuggets_ws_messages_dropped_total",
			Help: "Push messages dropped for slow subscribers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nuggets_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	ArchiveLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nuggets_archive_latency_seconds",
			Help:    "Archive write latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)

	ArchiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuggets_archive_errors_total",
			Help: "Failed archive writes",
		},
		[]string{"kind"},
	)
)
