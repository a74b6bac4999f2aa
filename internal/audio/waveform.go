package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyWaveform is returned by operations that need at least one sample
var ErrEmptyWaveform = errors.New("empty waveform")

// Waveform is an immutable sequence of mono samples normalised to [-1, 1].
// Every transform returns a new Waveform.
type Waveform struct {
	samples    []float32
	sampleRate int
}

// NewWaveform copies samples into a new Waveform
func NewWaveform(samples []float32, sampleRate int) (Waveform, error) {
	if sampleRate <= 0 {
		return Waveform{}, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	owned := make([]float32, len(samples))
	copy(owned, samples)

	return Waveform{samples: owned, sampleRate: sampleRate}, nil
}

// wrap takes ownership of samples without copying
func wrap(samples []float32, sampleRate int) Waveform {
	return Waveform{samples: samples, sampleRate: sampleRate}
}

// Silence returns n zero samples at sampleRate
func Silence(n, sampleRate int) Waveform {
	return wrap(make([]float32, n), sampleRate)
}

// SampleRate returns the sample rate in Hz
func (w Waveform) SampleRate() int {
	return w.sampleRate
}

// Len returns the number of samples
func (w Waveform) Len() int {
	return len(w.samples)
}

// IsEmpty reports whether the waveform has no samples
func (w Waveform) IsEmpty() bool {
	return len(w.samples) == 0
}

// Samples returns a copy of the sample data
func (w Waveform) Samples() []float32 {
	out := make([]float32, len(w.samples))
	copy(out, w.samples)
	return out
}

// Seconds returns the duration in seconds
func (w Waveform) Seconds() float64 {
	if w.sampleRate == 0 {
		return 0
	}
	return float64(len(w.samples)) / float64(w.sampleRate)
}

// Duration returns the duration as a time.Duration
func (w Waveform) Duration() time.Duration {
	return time.Duration(w.Seconds() * float64(time.Second))
}

// Slice returns a copy of the samples in [start, end)
func (w Waveform) Slice(start, end int) (Waveform, error) {
	if start < 0 || end > len(w.samples) || start > end {
		return Waveform{}, fmt.Errorf("slice [%d,%d) out of range for %d samples", start, end, len(w.samples))
	}

	out := make([]float32, end-start)
	copy(out, w.samples[start:end])
	return wrap(out, w.sampleRate), nil
}

// Resample converts w to rate by linear interpolation. The result has
// OutputIndex(w.Len(), w.SampleRate(), rate) samples.
func Resample(w Waveform, rate int) (Waveform, error) {
	if rate <= 0 {
		return Waveform{}, fmt.Errorf("target sample rate must be positive, got %d", rate)
	}
	if rate == w.sampleRate || w.IsEmpty() {
		return wrap(w.Samples(), rate), nil
	}

	n := OutputIndex(len(w.samples), w.sampleRate, rate)
	out := make([]float32, n)
	step := float64(w.sampleRate) / float64(rate)
	last := len(w.samples) - 1

	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = w.samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = w.samples[j]*(1-frac) + w.samples[j+1]*frac
	}

	return wrap(out, rate), nil
}
