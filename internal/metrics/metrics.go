// Package metrics exposes Prometheus collectors for the harvester. Each
// Metrics value carries its own registry so a harvesting session owns its
// collectors outright instead of sharing process globals.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the harvester's collectors.
type Metrics struct {
	registry *prometheus.Registry

	recordsTotal           *prometheus.CounterVec
	sourcesTotal           *prometheus.CounterVec
	harvestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds *prometheus.HistogramVec
	activeHarvests         prometheus.Gauge
	healthyProxies         prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
}

// New builds a Metrics value with a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		recordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total records harvested, labeled by source site.",
			},
			[]string{"site"},
		),
		sourcesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_sources_total",
				Help: "Total source harvests finished, labeled by status.",
			},
			[]string{"status"},
		),
		harvestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_harvest_duration_seconds",
				Help:    "Histogram of whole-source harvest durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"site"},
		),
		rateLimitDelaysSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		activeHarvests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_harvests",
				Help: "Number of sources currently being harvested.",
			},
		),
		healthyProxies: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_healthy_proxies",
				Help: "Number of proxies currently passing health checks.",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_http_requests_total",
				Help: "Total ops server requests, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a metric
// label. Returns "unknown" when the URL is unparseable.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler exposes this session's registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHarvest records the outcome of one whole-source harvest.
func (m *Metrics) ObserveHarvest(sourceURL, status string, records int, duration time.Duration) {
	site := SanitizeSite(sourceURL)
	m.sourcesTotal.WithLabelValues(status).Inc()
	m.harvestDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if records > 0 {
		m.recordsTotal.WithLabelValues(site).Add(float64(records))
	}
}

// ObserveRateLimitDelay records how long a request waited for admission.
func (m *Metrics) ObserveRateLimitDelay(sourceURL string, duration time.Duration) {
	m.rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(sourceURL)).Observe(duration.Seconds())
}

// HarvestStarted marks one source harvest in flight.
func (m *Metrics) HarvestStarted() { m.activeHarvests.Inc() }

// HarvestFinished marks one source harvest complete.
func (m *Metrics) HarvestFinished() { m.activeHarvests.Dec() }

// SetHealthyProxies records the current healthy proxy count.
func (m *Metrics) SetHealthyProxies(n int) { m.healthyProxies.Set(float64(n)) }

// ObserveHTTPRequest records one ops server request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
