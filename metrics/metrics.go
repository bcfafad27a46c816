package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ModelReady is 1 once the segmentation model has been loaded.
	ModelReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "model_ready",
		Help:      "Whether the SAM segmentation model is loaded and ready to serve.",
	})

	// CheckpointDownloadRetriesTotal counts failed checkpoint download attempts.
	CheckpointDownloadRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "checkpoint_download_retries_total",
		Help:      "Total number of failed SAM checkpoint download attempts.",
	})

	// DetectionsTotal counts stored detections by severity.
	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "detections_total",
		Help:      "Total number of stored pothole detections, labeled by severity.",
	}, []string{"severity"})

	// DetectDurationSeconds is end-to-end time per detect request.
	DetectDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "detect_duration_seconds",
		Help:      "End-to-end time to handle a detect request (segmentation + storage).",
		// Segmentation dominates; keep buckets coarse.
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// SegmentationErrorsTotal counts failed segmentation sidecar calls.
	SegmentationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "segmentation_errors_total",
		Help:      "Total number of failed segmentation sidecar calls.",
	})

	// EventsPublishedTotal counts RabbitMQ event publishes by result.
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "events_published_total",
		Help:      "Total number of detection events published to RabbitMQ, labeled by result.",
	}, []string{"result"})

	// ConnectedClients is the current number of WebSocket subscribers.
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pothole",
		Subsystem: "service",
		Name:      "websocket_connected_clients",
		Help:      "Current number of connected WebSocket clients.",
	})
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ModelReady,
			CheckpointDownloadRetriesTotal,
			DetectionsTotal,
			DetectDurationSeconds,
			SegmentationErrorsTotal,
			EventsPublishedTotal,
			ConnectedClients,
		)
	})
}
