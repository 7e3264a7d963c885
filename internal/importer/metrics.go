package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesImportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrace_frames_imported_total",
		Help: "Total number of frames imported into the store",
	}, []string{"source"})

	framesDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrace_frames_deduplicated_total",
		Help: "Total number of frames dropped as duplicates of their predecessor",
	}, []string{"source"})

	videosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrace_videos_processed_total",
		Help: "Total number of source videos processed",
	}, []string{"source", "status"})

	videoProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrace_video_processing_duration_seconds",
		Help:    "Duration of per-video processing in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)
