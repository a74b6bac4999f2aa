package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/config"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/errs"
	"github.com/skypro1111/svc-audio-service/internal/media"
	"github.com/skypro1111/svc-audio-service/internal/metrics"
)

const maxFormMemory = 32 << 20

// Converter runs one conversion pass
type Converter interface {
	Convert(ctx context.Context, w audio.Waveform, req engine.Request) (engine.Result, error)
}

// EngineAdmin swaps and describes the active engine
type EngineAdmin interface {
	Replace(ctx context.Context, spec engine.Spec) error
	Info() engine.HandleInfo
}

// Transcoder normalises inputs and encodes responses
type Transcoder interface {
	ToWAV(ctx context.Context, src, dst string) error
	Encode(ctx context.Context, w audio.Waveform, format string) ([]byte, error)
}

// HTTPServer serves conversion requests and engine administration.
// Conversions and swaps share one worker slot, so at most one runs at a time.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	converter  Converter
	admin      EngineAdmin
	transcoder Transcoder
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	slot chan struct{}

	// Server state
	startTime   time.Time
	conversions uint64
	failures    uint64
	swaps       uint64
	mu          sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, converter Converter, admin EngineAdmin, transcoder Transcoder,
	logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		converter:  converter,
		admin:      admin,
		transcoder: transcoder,
		metrics:    m,
		gatherer:   gatherer,
		slot:       make(chan struct{}, 1),
		startTime:  time.Now(),
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:      h.Routes(),
		ReadTimeout:  appConfig.Server.GetReadTimeoutDuration(),
		WriteTimeout: appConfig.Server.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Routes builds the router
func (h *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.config.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if h.config.Server.RateLimit > 0 {
			r.Use(httprate.LimitByIP(h.config.Server.RateLimit, time.Minute))
		}
		r.Use(h.workerSlot)

		r.Post("/convert", h.withMetrics("/convert", h.handleConvert))
		r.Post("/wav2wav", h.withMetrics("/wav2wav", h.handleConvert))
	})

	r.Group(func(r chi.Router) {
		r.Use(h.workerSlot)

		r.Post("/update_model", h.withMetrics("/update_model", h.handleUpdateModel))
		r.Post("/swap_engine", h.withMetrics("/swap_engine", h.handleUpdateModel))
	})

	return r
}

// workerSlot admits one request at a time; others wait until the slot frees
// or their context ends
func (h *HTTPServer) workerSlot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case h.slot <- struct{}{}:
			defer func() { <-h.slot }()
		case <-r.Context().Done():
			h.writeJSONError(w, http.StatusServiceUnavailable, "worker busy")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleConvert implements POST /convert: one pass for one speaker over a
// file the service can read, returned as an attachment
func (h *HTTPServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if err := parseForm(r); err != nil {
		h.writeError(w, reqID, errs.Validation("form", err))
		return
	}

	audioPath := strings.TrimSpace(r.FormValue("audio_path"))
	if audioPath == "" {
		h.writeError(w, reqID, errs.Validationf("audio_path", "audio_path is required"))
		return
	}

	format, err := media.ParseFormat(formDefault(r, "wav_format", media.FormatWAV))
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	req, err := h.requestFromForm(r)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	h.logger.Info("Conversion request",
		slog.String("request_id", reqID),
		slog.String("audio_path", audioPath),
		slog.String("params", req.String()),
		slog.String("format", format),
	)

	wave, _, err := media.Load(r.Context(), h.transcoder, audioPath)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	res, err := h.converter.Convert(r.Context(), wave, req)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	data, err := h.transcoder.Encode(r.Context(), res.Waveform, format)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	h.mu.Lock()
	h.conversions++
	h.mu.Unlock()

	w.Header().Set("Content-Type", media.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=temp.%s", format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write response", slog.String("request_id", reqID), slog.String("error", err.Error()))
	}
}

// requestFromForm builds the conversion request from configured defaults and form overrides
func (h *HTTPServer) requestFromForm(r *http.Request) (engine.Request, error) {
	params, err := h.config.Conversion.Params(formDefault(r, "spk", "0"))
	if err != nil {
		return engine.Request{}, err
	}

	if v := r.FormValue("tran"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return engine.Request{}, errs.Validation("tran", err)
		}
		params.PitchShift = int(f)
	}

	if v := r.FormValue("f0_predictor"); v != "" {
		p, err := engine.ParseF0Predictor(strings.ToLower(v))
		if err != nil {
			return engine.Request{}, err
		}
		params.F0Predictor = p
	}

	if v := r.FormValue("auto_f0"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return engine.Request{}, errs.Validation("auto_f0", err)
		}
		params.AutoF0 = b
	}

	floats := []struct {
		field string
		dst   *float64
	}{
		{"cluster_ratio", &params.ClusterRatio},
		{"noise_scale", &params.NoiseScale},
		{"pad_seconds", &params.PadSeconds},
		{"clip_seconds", &params.ClipSeconds},
	}
	for _, f := range floats {
		v := r.FormValue(f.field)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return engine.Request{}, errs.Validation(f.field, err)
		}
		*f.dst = parsed
	}

	return engine.NewRequestWithin(params, h.config.Conversion.Limits())
}

// handleUpdateModel implements POST /update_model
func (h *HTTPServer) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if err := parseForm(r); err != nil {
		h.writeError(w, reqID, errs.Validation("form", err))
		return
	}

	spec := engine.Spec{
		ModelPath:  strings.TrimSpace(r.FormValue("model_name")),
		ConfigPath: strings.TrimSpace(r.FormValue("config_name")),
		Device:     strings.TrimSpace(r.FormValue("device")),
	}
	if spec.Device == "" {
		spec.Device = h.config.Engine.Device
	}

	if spec.ModelPath == "" || spec.ConfigPath == "" {
		h.writeError(w, reqID, errs.Validationf("model_name", "model_name and config_name are required"))
		return
	}

	if err := h.admin.Replace(r.Context(), spec); err != nil {
		h.metrics.RecordEngineSwap(false)
		h.logger.Error("Engine swap failed",
			slog.String("request_id", reqID),
			slog.String("model_name", spec.ModelPath),
			slog.String("error", err.Error()),
		)
		h.writeJSON(w, http.StatusInternalServerError, statusResponse{
			Status:  "error",
			Message: fmt.Sprintf("failed to update model: %v", err),
		})
		return
	}

	h.metrics.RecordEngineSwap(true)
	h.mu.Lock()
	h.swaps++
	h.mu.Unlock()

	h.writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "model and config updated"})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	conversions, failures, swaps := h.conversions, h.failures, h.swaps
	h.mu.RUnlock()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "svc-audio-service",
			"version": "1.0.0",
		},
		"worker": map[string]interface{}{
			"busy":        len(h.slot) > 0,
			"conversions": conversions,
			"failures":    failures,
			"swaps":       swaps,
		},
		"engine": h.admin.Info(),
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.config.Sanitized())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "SVC Audio Conversion Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":              "API documentation",
			"GET /health":        "Service health check",
			"GET /config":        "Get service configuration",
			"GET /metrics":       "Prometheus metrics",
			"POST /convert":      "Convert a file (alias /wav2wav)",
			"POST /update_model": "Swap the inference engine (alias /swap_engine)",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeError maps the error taxonomy onto HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, reqID string, err error) {
	status := StatusFor(err)

	if status >= 500 {
		h.mu.Lock()
		h.failures++
		h.mu.Unlock()
	}

	h.logger.Warn("Request failed",
		slog.String("request_id", reqID),
		slog.Int("status", status),
		slog.String("kind", errs.KindOf(err).String()),
		slog.String("error", err.Error()),
	)

	h.writeJSONError(w, status, err.Error())
}

// StatusFor returns the HTTP status for err
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindResource:
		if errors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPServer) writeJSONError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, statusResponse{Status: "error", Message: message})
}

// writeJSON sends v with status. Encode failures are logged at debug level.
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to encode JSON response",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
}

// parseForm accepts both multipart and urlencoded bodies
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

func formDefault(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}
