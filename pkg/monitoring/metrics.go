package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration measures HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// SelectionsTotal counts ad selection requests by variant.
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_selections_total",
			Help: "Total number of ad selection requests by experiment variant",
		},
		[]string{"variant"},
	)

	// SelectionDuration measures end-to-end ad selection duration.
	SelectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ad_selection_duration_seconds",
			Help:    "Ad selection duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
		},
		[]string{"variant"},
	)

	// FallbacksTotal counts enhanced-path fallbacks.
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_fallbacks_total",
			Help: "Total number of fallbacks from the enhanced targeting path",
		},
	)

	// SignalActivationsTotal counts signal activation attempts by outcome.
	SignalActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_activations_total",
			Help: "Total number of audience signal activations by outcome",
		},
		[]string{"status"},
	)

	// SignalCacheTotal counts signal discovery cache lookups.
	SignalCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_cache_lookups_total",
			Help: "Total number of signal discovery cache lookups by result",
		},
		[]string{"result"},
	)

	// ImpressionsTotal counts tracked ad impressions.
	ImpressionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_impressions_total",
			Help: "Total number of tracked ad impressions",
		},
	)

	// ClicksTotal counts tracked ad clicks.
	ClicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_clicks_total",
			Help: "Total number of tracked ad clicks",
		},
	)
)
