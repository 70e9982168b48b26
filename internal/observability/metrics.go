package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// GeoMet API call rate by collection path. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// GeoMet API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	UpstreamDuration *prometheus.HistogramVec

	// Station pages consumed by the paginated catalog scan. Rate over pages/fetch shows catalog size drift.
	StationPagesFetchedTotal prometheus.Counter

	// Catalog cache hits. Hit rate = hits/(hits + catalog fetches).
	CacheHitsTotal *prometheus.CounterVec

	// Cache failures by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Catalog warming runs, failures, latency.
	CatalogWarmingTotal           prometheus.Counter
	CatalogWarmingErrorsTotal     prometheus.Counter
	CatalogWarmingDurationSeconds prometheus.Histogram

	// Nearest-station scan latency over the in-memory catalog.
	NearestResolutionDuration prometheus.Histogram

	// Lookups that found no station covering the query date.
	NoEligibleStationTotal prometheus.Counter

	// Total daily weather lookups. Watch for: traffic volume, rate() for QPS.
	WeatherQueriesTotal prometheus.Counter

	// Per-province query count (allow-list; others go to "other"). Watch for: traffic distribution.
	WeatherQueriesByProvinceTotal *prometheus.CounterVec

	// Fallback records served because the nearest station had no rows for the date.
	ObservationFallbackTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// trackedProvinces is built from config; used to resolve province for metrics.
	trackedProvincesMu sync.RWMutex
	trackedProvinces   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of GeoMet API calls",
		},
		[]string{"collection", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "GeoMet API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"collection", "status"},
	)
	StationPagesFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stationPagesFetchedTotal",
			Help: "Total number of 500-record station pages fetched",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of catalog cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation and error category",
		},
		[]string{"operation", "category"},
	)
	CatalogWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogWarmingTotal",
			Help: "Catalog warming runs",
		},
	)
	CatalogWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogWarmingErrorsTotal",
			Help: "Catalog warming runs that ended with at least one error",
		},
	)
	CatalogWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogWarmingDurationSeconds",
			Help:    "Catalog warming duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	NearestResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearestResolutionDurationSeconds",
			Help:    "Nearest-station scan latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
	NoEligibleStationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noEligibleStationTotal",
			Help: "Lookups where no station's date range covered the query date",
		},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of daily weather lookups",
		},
	)
	WeatherQueriesByProvinceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByProvinceTotal",
			Help: "Weather queries by province (allow-list; others use province=other)",
		},
		[]string{"province"},
	)
	ObservationFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "observationFallbackTotal",
			Help: "Lookups answered with the station-only fallback record",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, StationPagesFetchedTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CatalogWarmingTotal, CatalogWarmingErrorsTotal, CatalogWarmingDurationSeconds,
		NearestResolutionDuration, NoEligibleStationTotal,
		WeatherQueriesTotal, WeatherQueriesByProvinceTotal, ObservationFallbackTotal,
		RateLimitDeniedTotal,
	)
}

// SetTrackedProvinces sets the allow-list for province metrics. Non-tracked provinces increment "other".
func SetTrackedProvinces(provinces []string) {
	trackedProvincesMu.Lock()
	defer trackedProvincesMu.Unlock()
	trackedProvinces = make(map[string]struct{}, len(provinces))
	for _, p := range provinces {
		trackedProvinces[normalizeProvinceForMetrics(p)] = struct{}{}
	}
}

// RecordWeatherQuery records a daily weather lookup for the given province.
func RecordWeatherQuery(province string) {
	WeatherQueriesTotal.Inc()
	p := normalizeProvinceForMetrics(province)
	trackedProvincesMu.RLock()
	_, ok := trackedProvinces[p]
	trackedProvincesMu.RUnlock()
	if ok {
		WeatherQueriesByProvinceTotal.WithLabelValues(p).Inc()
	} else {
		WeatherQueriesByProvinceTotal.WithLabelValues("other").Inc()
	}
}

func normalizeProvinceForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
