package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// RemoteConfig contains configuration for engines served over HTTP
type RemoteConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// RemoteLoader validates model files locally, asks the inference worker to
// load them and returns a RemoteEngine bound to that model.
type RemoteLoader struct {
	config     RemoteConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemoteLoader creates a loader for the worker at config.Endpoint
func NewRemoteLoader(config RemoteConfig, logger *slog.Logger) (*RemoteLoader, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 1,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &RemoteLoader{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Load implements Loader
func (l *RemoteLoader) Load(ctx context.Context, spec Spec) (Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(spec.ModelPath); err != nil {
		return nil, errs.Validation("model_path", err)
	}

	modelConfig, err := LoadModelConfig(spec.ConfigPath)
	if err != nil {
		return nil, errs.Validation("config_path", err)
	}

	e := &RemoteEngine{
		config:     l.config,
		spec:       spec,
		model:      modelConfig,
		httpClient: l.httpClient,
		logger:     l.logger,
	}

	if err := e.load(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

// RemoteEngine forwards conversions to an inference worker over HTTP.
// Each request names the model and config paths so the worker can keep
// several models resident while an engine swap is validated.
type RemoteEngine struct {
	config     RemoteConfig
	spec       Spec
	model      *ModelConfig
	httpClient *http.Client
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	failedRequests  uint64
	cacheResets     uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// RemoteStats represents client statistics
type RemoteStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	CacheResets     uint64        `json:"cache_resets"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// TargetSampleRate implements Engine
func (e *RemoteEngine) TargetSampleRate() int {
	return e.model.Data.SamplingRate
}

// Speakers implements Engine
func (e *RemoteEngine) Speakers() map[string]int {
	out := make(map[string]int, len(e.model.Speakers))
	for name, id := range e.model.Speakers {
		out[name] = id
	}
	return out
}

// Convert implements Engine. There is no retry: a failed request fails the chunk.
func (e *RemoteEngine) Convert(ctx context.Context, in audio.Waveform, req Request) (Result, error) {
	startTime := time.Now()
	e.incrementTotalRequests()

	wavData, err := audio.EncodeWAVBytes(in)
	if err != nil {
		e.incrementFailedRequests()
		return Result{}, fmt.Errorf("failed to encode chunk: %w", err)
	}

	body, contentType, err := e.createMultipartRequest(wavData, req)
	if err != nil {
		e.incrementFailedRequests()
		return Result{}, fmt.Errorf("failed to create multipart request: %w", err)
	}

	respBody, err := e.post(ctx, "/convert", body, contentType)
	if err != nil {
		e.incrementFailedRequests()
		return Result{}, err
	}

	out, _, err := audio.DecodeWAVBytes(respBody)
	if err != nil {
		e.incrementFailedRequests()
		return Result{}, fmt.Errorf("failed to decode engine output: %w", err)
	}

	e.updateAvgResponseTime(time.Since(startTime))

	return Result{Waveform: out, SampleRate: out.SampleRate()}, nil
}

// ResetCache implements Engine
func (e *RemoteEngine) ResetCache(ctx context.Context) error {
	body, contentType, err := e.fieldsRequest(nil)
	if err != nil {
		return err
	}

	if _, err := e.post(ctx, "/clear_cache", body, contentType); err != nil {
		return err
	}

	e.mu.Lock()
	e.cacheResets++
	e.mu.Unlock()

	return nil
}

// Close implements Engine. The worker keeps its own model cache.
func (e *RemoteEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// load asks the worker to load the model and reports load failures as validation errors
func (e *RemoteEngine) load(ctx context.Context) error {
	body, contentType, err := e.fieldsRequest(nil)
	if err != nil {
		return err
	}

	if _, err := e.post(ctx, "/load", body, contentType); err != nil {
		return errs.Validation("engine", err)
	}

	return nil
}

// post sends a multipart body to the worker and returns the response body
func (e *RemoteEngine) post(ctx context.Context, path string, body io.Reader, contentType string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", "SVC-Audio-Service/1.0")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine HTTP error %d on %s: %s", resp.StatusCode, path, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}

// createMultipartRequest builds the conversion form: the padded chunk as a
// WAV file plus the conversion parameters
func (e *RemoteEngine) createMultipartRequest(wavData []byte, req Request) (io.Reader, string, error) {
	p := req.Params()

	fields := map[string]string{
		"spk":                 p.Speaker,
		"tran":                strconv.Itoa(p.PitchShift),
		"f0_predictor":        string(p.F0Predictor),
		"cluster_infer_ratio": strconv.FormatFloat(p.ClusterRatio, 'f', -1, 64),
		"auto_predict_f0":     strconv.FormatBool(p.AutoF0),
		"noice_scale":         strconv.FormatFloat(p.NoiseScale, 'f', -1, 64),
	}

	return e.fieldsRequestWithFile(fields, wavData)
}

func (e *RemoteEngine) fieldsRequest(fields map[string]string) (io.Reader, string, error) {
	return e.fieldsRequestWithFile(fields, nil)
}

func (e *RemoteEngine) fieldsRequestWithFile(fields map[string]string, wavData []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if wavData != nil {
		fileWriter, err := writer.CreateFormFile("audio", "chunk.wav")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fileWriter.Write(wavData); err != nil {
			return nil, "", fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	all := map[string]string{
		"model_path":  e.spec.ModelPath,
		"config_path": e.spec.ConfigPath,
	}
	if e.spec.Device != "" {
		all["device"] = e.spec.Device
	}
	for k, v := range fields {
		all[k] = v
	}

	for key, value := range all {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (e *RemoteEngine) incrementTotalRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests++
}

func (e *RemoteEngine) incrementFailedRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedRequests++
}

func (e *RemoteEngine) updateAvgResponseTime(responseTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Simple moving average
	if e.avgResponseTime == 0 {
		e.avgResponseTime = responseTime
	} else {
		e.avgResponseTime = (e.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (e *RemoteEngine) GetStats() RemoteStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return RemoteStats{
		TotalRequests:   e.totalRequests,
		FailedRequests:  e.failedRequests,
		CacheResets:     e.cacheResets,
		AvgResponseTime: e.avgResponseTime,
	}
}
