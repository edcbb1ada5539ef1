package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total ride requests accepted"})
	RidesMatched        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_matched_total", Help: "Total rides matched with a driver"})
	RidesCompleted      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_completed_total", Help: "Total rides completed"})
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "transition_conflicts_total", Help: "Status transitions rejected by their precondition"})
	LocationReports     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "location_reports_total", Help: "Driver location reports stored"})
	NearbyCacheHits     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "nearby_cache_hits_total", Help: "Nearby queries served from cache"})
	NearbyCacheMisses   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "nearby_cache_misses_total", Help: "Nearby queries evaluated against the active set"})
	LiveSessionsActive  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "live_sessions_active", Help: "Connected live sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
