package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// F0Predictor names the pitch-estimation method passed to the engine
type F0Predictor string

const (
	F0Crepe   F0Predictor = "crepe"
	F0PM      F0Predictor = "pm"
	F0Dio     F0Predictor = "dio"
	F0Harvest F0Predictor = "harvest"
	F0RMVPE   F0Predictor = "rmvpe"
	F0FCPE    F0Predictor = "fcpe"
)

// F0Predictors lists every accepted predictor
var F0Predictors = []F0Predictor{F0Crepe, F0PM, F0Dio, F0Harvest, F0RMVPE, F0FCPE}

// ParseF0Predictor validates a predictor name
func ParseF0Predictor(name string) (F0Predictor, error) {
	for _, p := range F0Predictors {
		if string(p) == name {
			return p, nil
		}
	}

	names := make([]string, len(F0Predictors))
	for i, p := range F0Predictors {
		names[i] = string(p)
	}
	return "", errs.Validationf("f0_predictor", "unknown predictor %q, expected one of %s", name, strings.Join(names, ", "))
}

// Params holds the conversion parameters of one pass over one waveform
type Params struct {
	Speaker         string      `json:"speaker"`
	PitchShift      int         `json:"pitch_shift"` // semitones
	F0Predictor     F0Predictor `json:"f0_predictor"`
	ClusterRatio    float64     `json:"cluster_ratio"`
	AutoF0          bool        `json:"auto_f0"`
	NoiseScale      float64     `json:"noise_scale"`
	PadSeconds      float64     `json:"pad_seconds"`
	ClipSeconds     float64     `json:"clip_seconds"`
	SilenceGap      int         `json:"silence_gap"` // cross-fade between clips, milliseconds
	SilenceGapRatio float64     `json:"silence_gap_ratio"`
}

// DefaultParams returns the parameters the batch driver uses unless configured otherwise
func DefaultParams() Params {
	return Params{
		F0Predictor:     F0PM,
		ClusterRatio:    0,
		AutoF0:          false,
		NoiseScale:      0.4,
		PadSeconds:      0.5,
		ClipSeconds:     0,
		SilenceGap:      0,
		SilenceGapRatio: 0.75,
	}
}

// Limits bounds the parameters that size buffers
type Limits struct {
	MaxPadSeconds  float64 `json:"max_pad_seconds"`
	MaxClipSeconds float64 `json:"max_clip_seconds"`
}

// DefaultLimits returns the bounds used when none are configured
func DefaultLimits() Limits {
	return Limits{MaxPadSeconds: 10, MaxClipSeconds: 300}
}

// Validate checks the limits themselves
func (l Limits) Validate() error {
	if !finite(l.MaxPadSeconds) || l.MaxPadSeconds <= 0 {
		return errs.Validationf("max_pad_seconds", "must be a positive number, got %f", l.MaxPadSeconds)
	}
	if !finite(l.MaxClipSeconds) || l.MaxClipSeconds <= 0 {
		return errs.Validationf("max_clip_seconds", "must be a positive number, got %f", l.MaxClipSeconds)
	}
	return nil
}

// orDefault returns DefaultLimits for the zero value
func (l Limits) orDefault() Limits {
	if l == (Limits{}) {
		return DefaultLimits()
	}
	return l
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every field against DefaultLimits
func (p Params) Validate() error {
	return p.ValidateWithin(DefaultLimits())
}

// ValidateWithin checks every field. Float fields must be finite.
func (p Params) ValidateWithin(limits Limits) error {
	limits = limits.orDefault()

	if strings.TrimSpace(p.Speaker) == "" {
		return errs.Validationf("speaker", "speaker is required")
	}

	if _, err := ParseF0Predictor(string(p.F0Predictor)); err != nil {
		return err
	}

	floats := []struct {
		field string
		value float64
	}{
		{"cluster_ratio", p.ClusterRatio},
		{"noise_scale", p.NoiseScale},
		{"pad_seconds", p.PadSeconds},
		{"clip_seconds", p.ClipSeconds},
		{"silence_gap_ratio", p.SilenceGapRatio},
	}
	for _, f := range floats {
		if !finite(f.value) {
			return errs.Validationf(f.field, "must be a finite number, got %f", f.value)
		}
	}

	if p.ClusterRatio < 0 || p.ClusterRatio > 1 {
		return errs.Validationf("cluster_ratio", "must be between 0 and 1, got %f", p.ClusterRatio)
	}

	if p.NoiseScale < 0 {
		return errs.Validationf("noise_scale", "cannot be negative, got %f", p.NoiseScale)
	}

	if p.PadSeconds < 0 || p.PadSeconds > limits.MaxPadSeconds {
		return errs.Validationf("pad_seconds", "must be between 0 and %g, got %f", limits.MaxPadSeconds, p.PadSeconds)
	}

	if p.ClipSeconds < 0 || p.ClipSeconds > limits.MaxClipSeconds {
		return errs.Validationf("clip_seconds", "must be between 0 and %g, got %f", limits.MaxClipSeconds, p.ClipSeconds)
	}

	if p.SilenceGap < 0 {
		return errs.Validationf("silence_gap", "cannot be negative, got %d", p.SilenceGap)
	}

	if p.SilenceGapRatio < 0 || p.SilenceGapRatio > 1 {
		return errs.Validationf("silence_gap_ratio", "must be between 0 and 1, got %f", p.SilenceGapRatio)
	}

	return nil
}

// Request is a validated, immutable set of conversion parameters
type Request struct {
	params Params
	limits Limits
}

// NewRequest validates p against DefaultLimits and wraps it in a Request
func NewRequest(p Params) (Request, error) {
	return NewRequestWithin(p, DefaultLimits())
}

// NewRequestWithin validates p against limits and wraps it in a Request
func NewRequestWithin(p Params, limits Limits) (Request, error) {
	limits = limits.orDefault()
	if err := p.ValidateWithin(limits); err != nil {
		return Request{}, err
	}
	return Request{params: p, limits: limits}, nil
}

// Params returns a copy of the request parameters
func (r Request) Params() Params {
	return r.params
}

// WithSpeaker returns a copy of r targeting another speaker
func (r Request) WithSpeaker(speaker string) (Request, error) {
	p := r.params
	p.Speaker = speaker
	return NewRequestWithin(p, r.limits)
}

// String renders the request for logs
func (r Request) String() string {
	p := r.params
	return fmt.Sprintf("spk=%s tran=%d f0=%s pad=%.3fs clip=%.3fs", p.Speaker, p.PitchShift, p.F0Predictor, p.PadSeconds, p.ClipSeconds)
}
