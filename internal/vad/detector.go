package vad

import (
	"fmt"
	"math"
)

// SilenceFloorDB is reported for frames with zero energy
const SilenceFloorDB = -200.0

// Detector classifies fixed-size frames of normalised samples as voiced or silent
type Detector struct {
	thresholdDB float64
	hopSize     int // samples per frame
}

// Frame is the classification of one hop-sized frame
type Frame struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	DB     float64 `json:"db"`
	Silent bool    `json:"silent"`
}

// NewDetector creates a detector with the given threshold and frame length
func NewDetector(thresholdDB float64, hopSize int) (*Detector, error) {
	if math.IsNaN(thresholdDB) {
		return nil, fmt.Errorf("threshold must be a number")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d", hopSize)
	}

	return &Detector{
		thresholdDB: thresholdDB,
		hopSize:     hopSize,
	}, nil
}

// Detect splits samples into consecutive frames and classifies each one.
// The last frame may be shorter than the hop size.
func (d *Detector) Detect(samples []float32) []Frame {
	if len(samples) == 0 {
		return nil
	}

	frames := make([]Frame, 0, (len(samples)+d.hopSize-1)/d.hopSize)

	for start := 0; start < len(samples); start += d.hopSize {
		end := start + d.hopSize
		if end > len(samples) {
			end = len(samples)
		}

		db := EnergyDB(samples[start:end])
		frames = append(frames, Frame{Start: start, End: end, DB: db, Silent: db < d.thresholdDB})
	}

	return frames
}

// EnergyDB returns the RMS level of samples in dBFS
func EnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return SilenceFloorDB
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(samples)))
	if rms == 0 {
		return SilenceFloorDB
	}

	return 20 * math.Log10(rms)
}
