package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution results.
const (
	ResultOK        = "ok"
	ResultNotFound  = "not_found"
	ResultAmbiguous = "ambiguous"
	ResultError     = "error"
)

// UnknownServiceType labels resolutions of types absent from the catalog.
const UnknownServiceType = "unknown"

var (
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_resolutions_total",
		Help: "Endpoint resolutions by service type and result",
	}, []string{"service_type", "result"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compass_resolve_duration_seconds",
		Help:    "Endpoint resolution latency",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_catalog_refreshes_total",
		Help: "Catalog refreshes by source and result",
	}, []string{"source", "result"})

	CatalogRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compass_catalog_refresh_duration_seconds",
		Help:    "Time to fetch and build a catalog",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	CatalogLoadedAt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "compass_catalog_loaded_timestamp_seconds",
		Help: "Unix time the current catalog was built",
	})

	CatalogEndpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "compass_catalog_endpoints",
		Help: "Endpoints in the current catalog",
	})

	TokenExpiresAt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "compass_token_expires_timestamp_seconds",
		Help: "Unix time the current token expires, 0 if unknown",
	})
)
