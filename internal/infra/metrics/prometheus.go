package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_jobs_processed_total",
		Help: "Total number of selection jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframe_job_processing_duration_seconds",
		Help:    "Duration of each stage of the selection pipeline",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframe_frames_decoded_total",
		Help: "Total number of frames decoded across all jobs",
	})

	FramesKeptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_frames_kept_total",
		Help: "Total number of frames kept by each selection pass",
	}, []string{"pass"})

	ChangePoints = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframe_change_points",
		Help:    "Number of change points found per job, by pass",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"pass"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframe_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
