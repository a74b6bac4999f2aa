package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/skypro1111/svc-audio-service/internal/errs"
)

func validParams() Params {
	p := DefaultParams()
	p.Speaker = "alice"
	return p
}

func TestParseF0Predictor(t *testing.T) {
	for _, p := range F0Predictors {
		got, err := ParseF0Predictor(string(p))
		if err != nil {
			t.Errorf("Expected %s to parse, got %v", p, err)
		}
		if got != p {
			t.Errorf("Expected %s, got %s", p, got)
		}
	}

	_, err := ParseF0Predictor("yin")
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("Expected validation error for unknown predictor, got %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
		field  string
	}{
		{"valid", func(p *Params) {}, ""},
		{"missing speaker", func(p *Params) { p.Speaker = " " }, "speaker"},
		{"bad predictor", func(p *Params) { p.F0Predictor = "yin" }, "f0_predictor"},
		{"cluster ratio too high", func(p *Params) { p.ClusterRatio = 1.5 }, "cluster_ratio"},
		{"negative noise", func(p *Params) { p.NoiseScale = -0.1 }, "noise_scale"},
		{"negative pad", func(p *Params) { p.PadSeconds = -1 }, "pad_seconds"},
		{"negative clip", func(p *Params) { p.ClipSeconds = -1 }, "clip_seconds"},
		{"negative gap", func(p *Params) { p.SilenceGap = -5 }, "silence_gap"},
		{"gap ratio too high", func(p *Params) { p.SilenceGapRatio = 2 }, "silence_gap_ratio"},
		{"NaN cluster ratio", func(p *Params) { p.ClusterRatio = math.NaN() }, "cluster_ratio"},
		{"NaN noise", func(p *Params) { p.NoiseScale = math.NaN() }, "noise_scale"},
		{"infinite noise", func(p *Params) { p.NoiseScale = math.Inf(1) }, "noise_scale"},
		{"NaN pad", func(p *Params) { p.PadSeconds = math.NaN() }, "pad_seconds"},
		{"infinite pad", func(p *Params) { p.PadSeconds = math.Inf(1) }, "pad_seconds"},
		{"negative infinite pad", func(p *Params) { p.PadSeconds = math.Inf(-1) }, "pad_seconds"},
		{"pad above limit", func(p *Params) { p.PadSeconds = 1e6 }, "pad_seconds"},
		{"NaN clip", func(p *Params) { p.ClipSeconds = math.NaN() }, "clip_seconds"},
		{"clip above limit", func(p *Params) { p.ClipSeconds = 1e9 }, "clip_seconds"},
		{"NaN gap ratio", func(p *Params) { p.SilenceGapRatio = math.NaN() }, "silence_gap_ratio"},
		{"pad at limit", func(p *Params) { p.PadSeconds = DefaultLimits().MaxPadSeconds }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.modify(&p)

			err := p.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}

			var ve *errs.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestValidateWithinLimits(t *testing.T) {
	limits := Limits{MaxPadSeconds: 1, MaxClipSeconds: 30}

	p := validParams()
	p.PadSeconds = 2
	if err := p.ValidateWithin(limits); err == nil {
		t.Error("Expected pad above configured limit to be rejected")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected pad within default limit to pass, got %v", err)
	}

	p.PadSeconds = 0.5
	p.ClipSeconds = 45
	if err := p.ValidateWithin(limits); err == nil {
		t.Error("Expected clip above configured limit to be rejected")
	}

	if err := p.ValidateWithin(Limits{}); err != nil {
		t.Errorf("Expected zero limits to fall back to defaults, got %v", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name    string
		limits  Limits
		wantErr bool
	}{
		{"defaults", DefaultLimits(), false},
		{"zero pad", Limits{MaxPadSeconds: 0, MaxClipSeconds: 10}, true},
		{"NaN clip", Limits{MaxPadSeconds: 1, MaxClipSeconds: math.NaN()}, true},
		{"infinite pad", Limits{MaxPadSeconds: math.Inf(1), MaxClipSeconds: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestWithSpeakerKeepsLimits(t *testing.T) {
	p := validParams()
	p.PadSeconds = 15
	req, err := NewRequestWithin(p, Limits{MaxPadSeconds: 20, MaxClipSeconds: 60})
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if _, err := req.WithSpeaker("bob"); err != nil {
		t.Errorf("Expected speaker change to keep the request limits, got %v", err)
	}
}

func TestRequestWithSpeaker(t *testing.T) {
	req, err := NewRequest(validParams())
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	bob, err := req.WithSpeaker("bob")
	if err != nil {
		t.Fatalf("Failed to change speaker: %v", err)
	}

	if bob.Params().Speaker != "bob" {
		t.Errorf("Expected speaker bob, got %s", bob.Params().Speaker)
	}
	if req.Params().Speaker != "alice" {
		t.Errorf("Expected original request unchanged, got %s", req.Params().Speaker)
	}

	if _, err := req.WithSpeaker(""); err == nil {
		t.Error("Expected error for empty speaker")
	}
}
