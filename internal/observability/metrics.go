package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cantelemetry"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and manager, event streams included.",
		},
		[]string{"service", "method", "route", "manager", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of non-streaming HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route", "manager"},
	)
	httpStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "open_streams",
			Help:      "Server-sent event streams currently open per manager.",
		},
		[]string{"service", "manager"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "frames_received_total",
			Help:      "Raw frames delivered by receivers.",
		},
		[]string{"transport"},
	)
	framesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "frames_processed_total",
			Help:      "Decoded frames applied to the telemetry aggregate.",
		},
		[]string{"transport", "can_id"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by queue eviction or rejection.",
		},
		[]string{"transport", "reason"},
	)
	frameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "frame_handle_duration_seconds",
			Help:      "Worker time spent decoding and routing one frame.",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3},
		},
		[]string{"transport"},
	)
	pipelineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Errors reported on a manager error channel, by kind.",
		},
		[]string{"transport", "kind"},
	)
	coalescerFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "flushes_total",
			Help:      "Snapshot batches emitted by the update coalescer.",
		},
		[]string{"transport"},
	)
	datalogRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datalog",
			Name:      "rows_total",
			Help:      "CSV rows written per data log channel.",
		},
		[]string{"channel"},
	)
	datalogErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datalog",
			Name:      "write_errors_total",
			Help:      "CSV write or open failures per data log channel.",
		},
		[]string{"channel"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration, httpStreams,
			framesReceived, framesProcessed, framesDropped, frameDuration, pipelineErrors,
			coalescerFlushes,
			datalogRows, datalogErrors,
		)
	})
}

func recordHTTPRequest(service string, req httpRequest, status int, duration time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(service, req.method, req.route, req.manager, strconv.Itoa(status)).Inc()
	if req.stream {
		return
	}
	httpDuration.WithLabelValues(service, req.method, req.route, req.manager).Observe(duration.Seconds())
}

func RecordFrameReceived(transport string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(transport).Inc()
}

func RecordFrameProcessed(transport, canID string) {
	RegisterMetrics()
	framesProcessed.WithLabelValues(transport, canID).Inc()
}

func RecordFrameHandled(transport string, duration time.Duration) {
	RegisterMetrics()
	frameDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

func RecordFrameDropped(transport, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(transport, reason).Inc()
}

func RecordFramesDropped(transport, reason string, n uint64) {
	RegisterMetrics()
	framesDropped.WithLabelValues(transport, reason).Add(float64(n))
}

func RecordPipelineError(transport, kind string) {
	RegisterMetrics()
	pipelineErrors.WithLabelValues(transport, kind).Inc()
}

func RecordCoalescerFlush(transport string) {
	RegisterMetrics()
	coalescerFlushes.WithLabelValues(transport).Inc()
}

func RecordDatalogRow(channel string) {
	RegisterMetrics()
	datalogRows.WithLabelValues(channel).Inc()
}

func RecordDatalogError(channel string) {
	RegisterMetrics()
	datalogErrors.WithLabelValues(channel).Inc()
}
