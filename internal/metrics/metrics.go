package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results.
const (
	FetchOK          = "ok"
	FetchEmpty       = "empty"
	FetchUnreachable = "unreachable"
	FetchBadStatus   = "bad_status"
)

// Cache outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Metrics holds all Prometheus metrics for the series pipeline.
// All methods are safe on a nil *Metrics so packages can run without it.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec // labels: result
	FetchDuration prometheus.Histogram
	ParseErrors   prometheus.Counter

	CacheRequests *prometheus.CounterVec // labels: outcome
	CacheEntries  prometheus.Gauge

	ExportFailures *prometheus.CounterVec // labels: sink
	ExportDuration *prometheus.HistogramVec

	DecomposeSkipped prometheus.Counter

	// Redis export sink circuit breaker (0=closed, 1=open, 2=half-open)
	RedisCircuitBreakerState prometheus.Gauge
	RedisCircuitBreakerTrips prometheus.Counter
	RedisHeldWrites          prometheus.Gauge
	RedisReplayedWrites      prometheus.Counter

	WSClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all metrics and registers them on reg.
// A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macrodash_fetch_total",
			Help: "Series fetches against the statistics provider, by result",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macrodash_fetch_duration_seconds",
			Help:    "Provider round-trip latency per series fetch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrodash_parse_errors_total",
			Help: "Provider bodies that could not be decoded and were treated as empty",
		}),

		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macrodash_cache_requests_total",
			Help: "Series cache lookups by outcome (hit, miss, stale)",
		}, []string{"outcome"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macrodash_cache_entries",
			Help: "Series currently held in the cache",
		}),

		ExportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macrodash_export_failures_total",
			Help: "Best-effort export writes that failed, by sink",
		}, []string{"sink"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "macrodash_export_duration_seconds",
			Help:    "Export write latency by sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),

		DecomposeSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrodash_decompose_skipped_total",
			Help: "Series whose trend/cycle decomposition was skipped",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macrodash_redis_circuit_breaker_state",
			Help: "Redis export circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrodash_redis_circuit_breaker_trips_total",
			Help: "Times the Redis export circuit breaker tripped open",
		}),
		RedisHeldWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macrodash_redis_held_writes",
			Help: "Series payloads held back while the Redis breaker is open",
		}),
		RedisReplayedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrodash_redis_replayed_writes_total",
			Help: "Held Redis payloads replayed after recovery",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macrodash_ws_clients",
			Help: "Connected websocket clients",
		}),

		gatherer: reg,
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDuration,
		m.ParseErrors,
		m.CacheRequests,
		m.CacheEntries,
		m.ExportFailures,
		m.ExportDuration,
		m.DecomposeSkipped,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisHeldWrites,
		m.RedisReplayedWrites,
		m.WSClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch records one provider fetch.
func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// IncParseError records a provider body treated as empty.
func (m *Metrics) IncParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// ObserveCache records one cache lookup outcome.
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(outcome).Inc()
}

// SetCacheEntries sets the current cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// ObserveExport records one export attempt for a sink.
func (m *Metrics) ObserveExport(sink string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ExportDuration.WithLabelValues(sink).Observe(d.Seconds())
	if err != nil {
		m.ExportFailures.WithLabelValues(sink).Inc()
	}
}

// IncDecomposeSkipped records a skipped decomposition.
func (m *Metrics) IncDecomposeSkipped() {
	if m == nil {
		return
	}
	m.DecomposeSkipped.Inc()
}

// SetBreakerState mirrors a circuit breaker transition.
func (m *Metrics) SetBreakerState(state int, tripped bool) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if tripped {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetHeldWrites sets the number of Redis payloads waiting for replay.
func (m *Metrics) SetHeldWrites(n int) {
	if m == nil {
		return
	}
	m.RedisHeldWrites.Set(float64(n))
}

// ObserveReplay records a replay pass of held Redis payloads.
func (m *Metrics) ObserveReplay(replayed, pending int) {
	if m == nil {
		return
	}
	m.RedisReplayedWrites.Add(float64(replayed))
	m.RedisHeldWrites.Set(float64(pending))
}

// SetWSClients sets the connected websocket client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}
