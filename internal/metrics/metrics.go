package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqiforecast_dataset_records",
			Help: "Historical records in the loaded dataset",
		},
	)

	ModelTrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqiforecast_model_trainings_total",
			Help: "Total model trainings by outcome",
		},
		[]string{"city", "status"},
	)

	ModelTrainingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqiforecast_model_training_seconds",
			Help:    "Model training latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"city"},
	)

	ModelCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqiforecast_model_cache_lookups_total",
			Help: "Model cache lookups by result (hit, miss, shared)",
		},
		[]string{"result"},
	)

	CachedModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqiforecast_cached_models",
			Help: "Fitted models currently held in the model cache",
		},
	)

	ForecastRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqiforecast_forecast_requests_total",
			Help: "Forecast pipeline runs by outcome",
		},
		[]string{"status"},
	)

	ForecastLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aqiforecast_forecast_seconds",
			Help:    "End-to-end forecast pipeline latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResultCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqiforecast_result_cache_lookups_total",
			Help: "Redis forecast result cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)
