package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/vad"
)

// DefaultThresholdDB is the silence threshold used by the batch driver and
// the service when none is configured
const DefaultThresholdDB = -40.0

// Chunk is a contiguous sample range [Start, End) of a parent waveform
type Chunk struct {
	Start  int  `json:"start_sample"`
	End    int  `json:"end_sample"`
	Silent bool `json:"is_silence"`
}

// Len returns the number of samples covered by the chunk
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Seconds returns the chunk duration at sampleRate
func (c Chunk) Seconds(sampleRate int) float64 {
	return float64(c.Len()) / float64(sampleRate)
}

// SegmenterConfig contains configuration for silence-based segmentation
type SegmenterConfig struct {
	HopDuration time.Duration // energy frame length
	MinInterval time.Duration // silent runs shorter than this are treated as voiced
}

// DefaultSegmenterConfig returns the frame and gap sizes used by the service
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		HopDuration: 20 * time.Millisecond,
		MinInterval: 300 * time.Millisecond,
	}
}

// Segmenter splits waveforms into silence-delimited chunks
type Segmenter struct {
	config SegmenterConfig
}

// NewSegmenter creates a new segmenter
func NewSegmenter(config SegmenterConfig) (*Segmenter, error) {
	if config.HopDuration <= 0 {
		return nil, fmt.Errorf("hop duration must be positive, got %s", config.HopDuration)
	}

	if config.MinInterval < 0 {
		return nil, fmt.Errorf("min interval cannot be negative, got %s", config.MinInterval)
	}

	return &Segmenter{config: config}, nil
}

// Segment returns the ordered chunk sequence covering [0, w.Len()).
// Frames whose RMS level is below thresholdDB are silent. An empty waveform
// yields an empty sequence.
func (s *Segmenter) Segment(w Waveform, thresholdDB float64) ([]Chunk, error) {
	if w.IsEmpty() {
		return []Chunk{}, nil
	}

	detector, err := vad.NewDetector(thresholdDB, durationToSamples(s.config.HopDuration, w.sampleRate))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	runs := make([]Chunk, 0)
	for _, frame := range detector.Detect(w.samples) {
		runs = appendRun(runs, Chunk{Start: frame.Start, End: frame.End, Silent: frame.Silent})
	}

	if len(runs) == 1 {
		return runs, nil
	}

	// Short pauses stay inside the voiced region
	minGap := durationToSamples(s.config.MinInterval, w.sampleRate)
	chunks := make([]Chunk, 0, len(runs))
	for _, run := range runs {
		if run.Silent && run.Len() < minGap {
			run.Silent = false
		}
		chunks = appendRun(chunks, run)
	}

	return chunks, nil
}

// appendRun appends c, merging it into the last chunk when both have the same kind
func appendRun(chunks []Chunk, c Chunk) []Chunk {
	if n := len(chunks); n > 0 && chunks[n-1].Silent == c.Silent && chunks[n-1].End == c.Start {
		chunks[n-1].End = c.End
		return chunks
	}
	return append(chunks, c)
}

// CountChunks returns the number of voiced and silent chunks
func CountChunks(chunks []Chunk) (voiced, silent int) {
	for _, c := range chunks {
		if c.Silent {
			silent++
		} else {
			voiced++
		}
	}
	return voiced, silent
}

// durationToSamples converts d to a sample count at sampleRate, at least one
func durationToSamples(d time.Duration, sampleRate int) int {
	n := int(math.Round(d.Seconds() * float64(sampleRate)))
	if n < 1 {
		return 1
	}
	return n
}
