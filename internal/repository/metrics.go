package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_cache_hits_total",
			Help: "Number of GetAll calls served from the cached snapshot",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_cache_misses_total",
			Help: "Number of GetAll calls that loaded tasks from the source",
		},
	)

	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_cache_invalidations_total",
			Help: "Number of times the cached snapshot was dropped",
		},
		[]string{"reason"},
	)

	sourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_source_errors_total",
			Help: "Number of failed calls to the backing task source",
		},
		[]string{"operation"},
	)

	cacheFresh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_cache_fresh",
			Help: "1 when the repository holds a fresh snapshot, 0 otherwise",
		},
	)
)
