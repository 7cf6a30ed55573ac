package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kzh_scheduler_pipeline_runs_total",
			Help: "Total pipeline runs by pipeline and result.",
		},
		[]string{"pipeline", "result"},
	)
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kzh_scheduler_pipeline_duration_seconds",
			Help:    "Pipeline run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"pipeline"},
	)
	lastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kzh_scheduler_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per pipeline.",
		},
		[]string{"pipeline"},
	)
	ticksSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kzh_scheduler_ticks_skipped_total",
			Help: "Ticks skipped because the tick lock was held elsewhere.",
		},
	)
)
