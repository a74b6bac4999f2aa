// Command fake-engine serves the inference worker protocol for local
// development. Its "conversion" resamples the chunk to the model's output
// rate and returns it unchanged otherwise.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/engine"
)

const maxFormMemory = 32 << 20

type worker struct {
	logger  *slog.Logger
	latency time.Duration

	mu      sync.Mutex
	configs map[string]*engine.ModelConfig

	conversions atomic.Int64
	resets      atomic.Int64
}

func newWorker(logger *slog.Logger, latency time.Duration) *worker {
	return &worker{
		logger:  logger,
		latency: latency,
		configs: make(map[string]*engine.ModelConfig),
	}
}

func (wk *worker) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/load", wk.handleLoad)
	r.Post("/convert", wk.handleConvert)
	r.Post("/clear_cache", wk.handleClearCache)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "ok conversions=%d resets=%d\n", wk.conversions.Load(), wk.resets.Load())
	})

	return r
}

// modelConfig returns the cached config named by the request, loading it on first use
func (wk *worker) modelConfig(r *http.Request) (*engine.ModelConfig, error) {
	path := r.FormValue("config_path")
	if path == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	wk.mu.Lock()
	defer wk.mu.Unlock()

	if cfg, ok := wk.configs[path]; ok {
		return cfg, nil
	}

	cfg, err := engine.LoadModelConfig(path)
	if err != nil {
		return nil, err
	}
	wk.configs[path] = cfg
	return cfg, nil
}

func (wk *worker) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	cfg, err := wk.modelConfig(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wk.logger.Info("Model loaded",
		slog.String("model_path", r.FormValue("model_path")),
		slog.String("device", r.FormValue("device")),
		slog.Int("sampling_rate", cfg.Data.SamplingRate),
		slog.Int("speakers", len(cfg.Speakers)),
	)

	w.WriteHeader(http.StatusOK)
}

func (wk *worker) handleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	cfg, err := wk.modelConfig(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	spk := r.FormValue("spk")
	if _, ok := cfg.Speakers[spk]; !ok {
		http.Error(w, fmt.Sprintf("unknown speaker %q", spk), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	in, _, err := audio.DecodeWAVBytes(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if wk.latency > 0 {
		time.Sleep(wk.latency)
	}

	out, err := audio.Resample(in, cfg.Data.SamplingRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := audio.EncodeWAVBytes(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	wk.conversions.Add(1)
	wk.logger.Debug("Chunk converted",
		slog.String("spk", spk),
		slog.String("tran", r.FormValue("tran")),
		slog.String("f0_predictor", r.FormValue("f0_predictor")),
		slog.Int("in_samples", in.Len()),
		slog.Int("out_samples", out.Len()),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (wk *worker) handleClearCache(w http.ResponseWriter, r *http.Request) {
	wk.resets.Add(1)
	w.WriteHeader(http.StatusOK)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "Listen address")
	latency := flag.Duration("latency", 0, "Artificial delay added to every conversion")
	debug := flag.Bool("debug", false, "Log every converted chunk")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	wk := newWorker(logger, *latency)

	logger.Info("Fake engine starting", slog.String("address", *addr))
	if err := http.ListenAndServe(*addr, wk.routes()); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
