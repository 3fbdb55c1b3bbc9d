package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// simRecordsTotal counts simulation records by kind.
	simRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_sim_records_total",
			Help: "Total number of simulation records observed",
		},
		[]string{"kind"},
	)

	// simDroppedRecordsTotal counts records a full subscriber never received.
	simDroppedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_sim_dropped_records_total",
			Help: "Total number of simulation records dropped by slow subscribers",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_sessions_active",
			Help: "Number of running game sessions",
		},
	)

	lobbiesStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_lobbies_started_total",
			Help: "Total number of waiting lobbies that filled and started their game",
		},
	)

	marketTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_market_ticks_total",
			Help: "Total number of market ticks applied",
		},
		[]string{"volatility"},
	)

	// httpRequestsTotal counts API requests by route pattern and status code.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "code"},
	)

	journalErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_journal_errors_total",
			Help: "Total number of journal writes that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		simRecordsTotal,
		simDroppedRecordsTotal,
		sessionsActive,
		lobbiesStartedTotal,
		marketTicksTotal,
		httpRequestsTotal,
		journalErrorsTotal,
	)
}

func ObserveRecord(kind string) {
	simRecordsTotal.WithLabelValues(kind).Inc()
}

func ObserveDropped(n int64) {
	if n > 0 {
		simDroppedRecordsTotal.Add(float64(n))
	}
}

func SessionStarted() {
	sessionsActive.Inc()
}

func SessionStopped() {
	sessionsActive.Dec()
}

func LobbyStarted() {
	lobbiesStartedTotal.Inc()
}

func MarketTick(volatility string) {
	marketTicksTotal.WithLabelValues(volatility).Inc()
}

func ObserveRequest(method, route, code string) {
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
}

func JournalError() {
	journalErrorsTotal.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
