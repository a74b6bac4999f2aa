package vad

import (
	"math"
	"testing"
)

func sine(n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name        string
		thresholdDB float64
		hopSize     int
		expectErr   bool
	}{
		{"valid parameters", -40, 320, false},
		{"zero threshold", 0, 320, false},
		{"positive threshold", 6, 320, false},
		{"NaN threshold", math.NaN(), 320, true},
		{"zero hop size", -40, 0, true},
		{"negative hop size", -40, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.thresholdDB, tt.hopSize)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestEnergyDB(t *testing.T) {
	if db := EnergyDB(make([]float32, 100)); db != SilenceFloorDB {
		t.Errorf("Expected floor for zero samples, got %f", db)
	}

	if db := EnergyDB(nil); db != SilenceFloorDB {
		t.Errorf("Expected floor for empty input, got %f", db)
	}

	// Full-scale square wave has RMS 1.0 -> 0 dBFS
	square := []float32{1, -1, 1, -1}
	if db := EnergyDB(square); math.Abs(db) > 1e-9 {
		t.Errorf("Expected 0 dBFS, got %f", db)
	}

	// 0.01 amplitude constant -> -40 dBFS
	quiet := []float32{0.01, 0.01, 0.01}
	if db := EnergyDB(quiet); math.Abs(db+40) > 1e-4 {
		t.Errorf("Expected -40 dBFS, got %f", db)
	}
}

func TestDetectFrames(t *testing.T) {
	detector, err := NewDetector(-40, 100)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	samples := append(sine(200, 0.5), make([]float32, 150)...)
	frames := detector.Detect(samples)

	if len(frames) != 4 {
		t.Fatalf("Expected 4 frames, got %d", len(frames))
	}

	expectedSilent := []bool{false, false, true, true}
	for i, f := range frames {
		if f.Silent != expectedSilent[i] {
			t.Errorf("Frame %d: expected silent=%v, got %v (%.1f dB)", i, expectedSilent[i], f.Silent, f.DB)
		}
	}

	last := frames[len(frames)-1]
	if last.Start != 300 || last.End != 350 {
		t.Errorf("Expected short last frame [300,350), got [%d,%d)", last.Start, last.End)
	}
}

func TestDetectEmpty(t *testing.T) {
	detector, _ := NewDetector(-40, 100)
	if frames := detector.Detect(nil); frames != nil {
		t.Errorf("Expected nil frames, got %d", len(frames))
	}
}
