package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// Handle owns the active engine instance. Every engine call and every swap
// runs under the same mutex, so a swap never overlaps a conversion.
type Handle struct {
	loader Loader
	logger *slog.Logger

	engine   Engine
	spec     Spec
	loadedAt time.Time
	swaps    uint64

	mu sync.Mutex
}

// HandleInfo describes the active engine
type HandleInfo struct {
	ModelPath        string       `json:"model_path"`
	ConfigPath       string       `json:"config_path"`
	Device           string       `json:"device,omitempty"`
	TargetSampleRate int          `json:"target_sample_rate"`
	Speakers         []string     `json:"speakers"`
	LoadedAt         time.Time    `json:"loaded_at"`
	Swaps            uint64       `json:"swaps"`
	Stats            *RemoteStats `json:"stats,omitempty"`
}

// statsReporter is implemented by engines that track request statistics
type statsReporter interface {
	GetStats() RemoteStats
}

// NewHandle loads the initial engine from spec
func NewHandle(ctx context.Context, loader Loader, spec Spec, logger *slog.Logger) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	e, err := loader.Load(ctx, spec)
	if err != nil {
		return nil, err
	}

	logger.Info("Inference engine loaded",
		slog.String("model_path", spec.ModelPath),
		slog.String("config_path", spec.ConfigPath),
		slog.Int("target_sample_rate", e.TargetSampleRate()),
	)

	return &Handle{
		loader:   loader,
		logger:   logger,
		engine:   e,
		spec:     spec,
		loadedAt: time.Now(),
	}, nil
}

// Do runs fn with exclusive access to the active engine
func (h *Handle) Do(ctx context.Context, fn func(Engine) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine == nil {
		return ErrNoEngine
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(h.engine)
}

// Replace loads a new engine from spec and makes it active. On any failure
// the previous engine stays active and a ValidationError is returned.
func (h *Handle) Replace(ctx context.Context, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.loader.Load(ctx, spec)
	if err != nil {
		h.logger.Warn("Engine swap rejected, keeping previous engine",
			slog.String("model_path", spec.ModelPath),
			slog.String("config_path", spec.ConfigPath),
			slog.String("error", err.Error()),
		)
		if errs.KindOf(err) == errs.KindValidation {
			return err
		}
		return errs.Validation("engine", err)
	}

	previous := h.engine
	h.engine = next
	h.spec = spec
	h.loadedAt = time.Now()
	h.swaps++

	if previous != nil {
		if err := previous.Close(); err != nil {
			h.logger.Warn("Failed to close previous engine", slog.String("error", err.Error()))
		}
	}

	h.logger.Info("Inference engine replaced",
		slog.String("model_path", spec.ModelPath),
		slog.String("config_path", spec.ConfigPath),
		slog.Int("target_sample_rate", next.TargetSampleRate()),
		slog.Uint64("swaps", h.swaps),
	)

	return nil
}

// Info returns a description of the active engine
func (h *Handle) Info() HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := HandleInfo{
		ModelPath:  h.spec.ModelPath,
		ConfigPath: h.spec.ConfigPath,
		Device:     h.spec.Device,
		LoadedAt:   h.loadedAt,
		Swaps:      h.swaps,
	}
	if h.engine != nil {
		info.TargetSampleRate = h.engine.TargetSampleRate()
		info.Speakers = SpeakerNames(h.engine)
		if r, ok := h.engine.(statsReporter); ok {
			stats := r.GetStats()
			info.Stats = &stats
		}
	}

	return info
}

// Close releases the active engine
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine == nil {
		return nil
	}

	err := h.engine.Close()
	h.engine = nil
	return err
}
