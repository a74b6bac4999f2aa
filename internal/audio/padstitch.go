package audio

import (
	"fmt"
	"math"
)

// PadLength returns the number of context samples added to each side of a
// chunk for padSeconds at sampleRate. Pad and Unpad both use it so the crop
// is the exact inverse of the pad.
func PadLength(padSeconds float64, sampleRate int) int {
	if padSeconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(padSeconds * float64(sampleRate)))
}

// Pad surrounds samples with PadLength zeros on each side
func Pad(samples []float32, padSeconds float64, sampleRate int) []float32 {
	n := PadLength(padSeconds, sampleRate)
	out := make([]float32, len(samples)+2*n)
	copy(out[n:], samples)
	return out
}

// Unpad removes PadLength samples at targetRate from each end of converted
// output. Input shorter than both pads yields an empty slice.
func Unpad(samples []float32, padSeconds float64, targetRate int) []float32 {
	n := PadLength(padSeconds, targetRate)
	if len(samples) <= 2*n {
		return []float32{}
	}

	out := make([]float32, len(samples)-2*n)
	copy(out, samples[n:len(samples)-n])
	return out
}

// OutputIndex maps a source sample index onto the output sample grid:
// ceil(index * dstRate / srcRate), computed in integers.
func OutputIndex(index, srcRate, dstRate int) int {
	if index <= 0 {
		return 0
	}
	num := int64(index) * int64(dstRate)
	return int((num + int64(srcRate) - 1) / int64(srcRate))
}

// ExpectedLength returns the output sample count of chunk c. Chunk edges are
// anchored to the output grid so consecutive lengths always add up to
// ceil(total * dstRate / srcRate), whatever the chunking.
func ExpectedLength(c Chunk, srcRate, dstRate int) int {
	return OutputIndex(c.End, srcRate, dstRate) - OutputIndex(c.Start, srcRate, dstRate)
}

// ExpectedLengths returns ExpectedLength for every chunk
func ExpectedLengths(chunks []Chunk, srcRate, dstRate int) []int {
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = ExpectedLength(c, srcRate, dstRate)
	}
	return lengths
}

// FitLength truncates samples or right-pads them with zeros to exactly n
func FitLength(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)
	return out
}

// Stitch concatenates per-chunk outputs in chunk order. Silent chunks become
// zeros of their expected length; voiced outputs are forced to it.
func Stitch(chunks []Chunk, outputs [][]float32, expected []int) ([]float32, error) {
	if len(outputs) != len(chunks) || len(expected) != len(chunks) {
		return nil, fmt.Errorf("stitch: %d chunks, %d outputs, %d expected lengths",
			len(chunks), len(outputs), len(expected))
	}

	total := 0
	for _, n := range expected {
		if n < 0 {
			return nil, fmt.Errorf("stitch: negative expected length %d", n)
		}
		total += n
	}

	out := make([]float32, 0, total)
	for i, c := range chunks {
		if c.Silent {
			out = append(out, make([]float32, expected[i])...)
			continue
		}
		out = append(out, FitLength(outputs[i], expected[i])...)
	}

	return out, nil
}

// Clip is one piece of a voiced chunk sent to the engine on its own.
// Input covers [Start-Overlap, End) in chunk-relative samples.
type Clip struct {
	Start   int
	End     int
	Overlap int
}

// InputStart returns the first chunk-relative sample fed to the engine
func (c Clip) InputStart() int {
	return c.Start - c.Overlap
}

// PlanClips splits n samples into clips of at most clipLen samples. Every clip
// after the first reaches overlap samples back into its predecessor.
// A non-positive clipLen yields a single clip.
func PlanClips(n, clipLen, overlap int) []Clip {
	if n <= 0 {
		return nil
	}
	if clipLen <= 0 || clipLen >= n {
		return []Clip{{Start: 0, End: n}}
	}
	if overlap > clipLen {
		overlap = clipLen
	}
	if overlap < 0 {
		overlap = 0
	}

	clips := make([]Clip, 0, (n+clipLen-1)/clipLen)
	for start := 0; start < n; start += clipLen {
		end := start + clipLen
		if end > n {
			end = n
		}
		clip := Clip{Start: start, End: end}
		if start > 0 {
			clip.Overlap = overlap
		}
		clips = append(clips, clip)
	}

	return clips
}

// Crossfade joins next onto acc where the first overlap samples of next cover
// the last overlap samples of acc. A centred window of ratio*overlap samples is
// blended linearly; before it acc is kept, after it next is kept.
// The result has len(acc)+len(next)-overlap samples.
func Crossfade(acc, next []float32, overlap int, ratio float64) []float32 {
	if overlap > len(acc) {
		overlap = len(acc)
	}
	if overlap > len(next) {
		overlap = len(next)
	}
	if overlap < 0 {
		overlap = 0
	}

	blend := int(math.Round(float64(overlap) * math.Max(0, math.Min(1, ratio))))
	left := (overlap - blend) / 2
	base := len(acc) - overlap

	out := make([]float32, 0, len(acc)+len(next)-overlap)
	out = append(out, acc[:base]...)

	for i := 0; i < overlap; i++ {
		prev, cur := acc[base+i], next[i]
		switch {
		case i < left:
			out = append(out, prev)
		case i < left+blend:
			w := float32(i-left+1) / float32(blend+1)
			out = append(out, prev*(1-w)+cur*w)
		default:
			out = append(out, cur)
		}
	}

	return append(out, next[overlap:]...)
}
