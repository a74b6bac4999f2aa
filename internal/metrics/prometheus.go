package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the conversion service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Conversion metrics
	Conversions        *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	AudioSeconds       prometheus.Counter

	// Segmentation metrics
	Chunks        *prometheus.CounterVec
	ChunkDuration prometheus.Histogram

	// Engine metrics
	EngineCalls        prometheus.Counter
	EngineFailures     prometheus.Counter
	EngineCallDuration prometheus.Histogram
	CacheResets        prometheus.Counter
	EngineSwaps        *prometheus.CounterVec

	// Batch metrics
	FilesDiscovered prometheus.Counter
	FilesProcessed  *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Conversion metrics
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_conversions_total",
			Help: "Total number of conversion passes by status",
		}, []string{"status"}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "svc_conversion_duration_seconds",
			Help:    "Wall time of one conversion pass",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		AudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "svc_audio_seconds_total",
			Help: "Total seconds of input audio converted",
		}),

		// Segmentation metrics
		Chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_chunks_total",
			Help: "Total number of chunks produced by the segmenter",
		}, []string{"kind"}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "svc_chunk_duration_seconds",
			Help:    "Duration of voiced chunks sent to the engine",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),

		// Engine metrics
		EngineCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "svc_engine_calls_total",
			Help: "Total number of inference calls",
		}),
		EngineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "svc_engine_failures_total",
			Help: "Total number of failed inference calls",
		}),
		EngineCallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "svc_engine_call_duration_seconds",
			Help:    "Duration of inference calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		CacheResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "svc_engine_cache_resets_total",
			Help: "Total number of engine cache resets",
		}),
		EngineSwaps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_engine_swaps_total",
			Help: "Total number of engine swap attempts by status",
		}, []string{"status"}),

		// Batch metrics
		FilesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "svc_batch_files_discovered_total",
			Help: "Total number of input files discovered",
		}),
		FilesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_batch_files_processed_total",
			Help: "Total number of input files processed by outcome",
		}, []string{"outcome"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svc_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "svc_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConversion records a finished conversion pass
func (m *Metrics) RecordConversion(success bool, durationSeconds, audioSeconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.Conversions.WithLabelValues(status).Inc()
	m.ConversionDuration.Observe(durationSeconds)
	if success {
		m.AudioSeconds.Add(audioSeconds)
	}
}

// RecordChunks records the segmenter output of one pass
func (m *Metrics) RecordChunks(voiced, silent int) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues("voiced").Add(float64(voiced))
	m.Chunks.WithLabelValues("silent").Add(float64(silent))
}

// RecordEngineCall records one inference call on a voiced chunk
func (m *Metrics) RecordEngineCall(chunkSeconds, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.EngineCalls.Inc()
	m.ChunkDuration.Observe(chunkSeconds)
	m.EngineCallDuration.Observe(durationSeconds)
	if err != nil {
		m.EngineFailures.Inc()
	}
}

// RecordCacheReset increments the cache reset counter
func (m *Metrics) RecordCacheReset() {
	if m == nil {
		return
	}
	m.CacheResets.Inc()
}

// RecordEngineSwap records an engine swap attempt
func (m *Metrics) RecordEngineSwap(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "rejected"
	}
	m.EngineSwaps.WithLabelValues(status).Inc()
}

// RecordFilesDiscovered adds n discovered input files
func (m *Metrics) RecordFilesDiscovered(n int) {
	if m == nil {
		return
	}
	m.FilesDiscovered.Add(float64(n))
}

// RecordFileProcessed records the outcome of one input file
func (m *Metrics) RecordFileProcessed(outcome string) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
