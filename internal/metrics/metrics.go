package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_forecast_fetches_total",
			Help: "Forecast fetch attempts by station, source and outcome",
		},
		[]string{"station", "source", "status"},
	)

	ForecastFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditor_forecast_fetch_seconds",
			Help:    "Forecast fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ActualsFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_actuals_fetches_total",
			Help: "Actuals fetch attempts by station and outcome",
		},
		[]string{"station", "status"},
	)

	ForecastsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_forecasts_recorded_total",
			Help: "Forecast records durably written",
		},
		[]string{"station", "source"},
	)

	DuplicateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_duplicate_rejections_total",
			Help: "Forecast writes rejected because the key was already captured",
		},
		[]string{"station", "source"},
	)
)
