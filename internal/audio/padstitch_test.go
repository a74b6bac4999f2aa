package audio

import (
	"math"
	"testing"
)

func indexed(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestPadLength(t *testing.T) {
	tests := []struct {
		pad      float64
		rate     int
		expected int
	}{
		{0.5, 44100, 22050},
		{0.5, 22050, 11025},
		{0, 44100, 0},
		{-1, 44100, 0},
		{0.0125, 44100, 551}, // 551.25
		{0.0125, 40000, 500},
		{0.3333, 3, 1}, // 0.9999 rounds up
	}

	for _, tt := range tests {
		if got := PadLength(tt.pad, tt.rate); got != tt.expected {
			t.Errorf("PadLength(%v, %d): expected %d, got %d", tt.pad, tt.rate, tt.expected, got)
		}
	}
}

func TestPad(t *testing.T) {
	got := Pad([]float32{1, 2, 3}, 0.5, 4)
	expected := []float32{0, 0, 1, 2, 3, 0, 0}

	if len(got) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Index %d: expected %f, got %f", i, expected[i], got[i])
		}
	}
}

func TestUnpadIsInverseOfPad(t *testing.T) {
	for _, tc := range []struct {
		pad  float64
		rate int
	}{
		{0.5, 16000},
		{0.0125, 44100},
		{0.013, 22050},
		{0, 8000},
	} {
		src := sineWave(1234, tc.rate, 0.4)
		restored := Unpad(Pad(src, tc.pad, tc.rate), tc.pad, tc.rate)

		if len(restored) != len(src) {
			t.Fatalf("pad %.4f at %d: expected %d samples, got %d", tc.pad, tc.rate, len(src), len(restored))
		}
		for i := range src {
			if restored[i] != src[i] {
				t.Fatalf("pad %.4f at %d: sample %d shifted", tc.pad, tc.rate, i)
			}
		}
	}
}

func TestUnpadKeepsMiddleAtTargetRate(t *testing.T) {
	// Engine output at a different rate: the crop uses the target rate
	pad := 0.0125
	engineOut := indexed(3000)
	targetRate := 40000 // 500 samples per side

	trimmed := Unpad(engineOut, pad, targetRate)

	expectedLen := len(engineOut) - 2*int(math.Round(pad*float64(targetRate)))
	if len(trimmed) != expectedLen {
		t.Fatalf("Expected %d samples, got %d", expectedLen, len(trimmed))
	}
	if trimmed[0] != 500 {
		t.Errorf("Expected first retained sample 500, got %f", trimmed[0])
	}
	if trimmed[len(trimmed)-1] != 2499 {
		t.Errorf("Expected last retained sample 2499, got %f", trimmed[len(trimmed)-1])
	}
}

func TestUnpadShortInput(t *testing.T) {
	if got := Unpad(indexed(10), 0.5, 10); len(got) != 0 {
		t.Errorf("Expected empty result, got %d samples", len(got))
	}
	if got := Unpad(indexed(11), 0.5, 10); len(got) != 1 || got[0] != 5 {
		t.Errorf("Expected single middle sample, got %v", got)
	}
}

func TestOutputIndex(t *testing.T) {
	tests := []struct {
		index, src, dst, expected int
	}{
		{0, 16000, 44100, 0},
		{1, 3, 2, 1},
		{3, 3, 2, 2},
		{16000, 16000, 44100, 44100},
		{16001, 16000, 44100, 44103},
	}

	for _, tt := range tests {
		if got := OutputIndex(tt.index, tt.src, tt.dst); got != tt.expected {
			t.Errorf("OutputIndex(%d, %d, %d): expected %d, got %d", tt.index, tt.src, tt.dst, tt.expected, got)
		}
	}
}

func TestStitchSilentChunkDuration(t *testing.T) {
	// 16001 samples at 16 kHz is 1.0000625 s; at 44.1 kHz ceil gives 44103
	chunks := []Chunk{{0, 16001, true}}
	expected := ExpectedLengths(chunks, 16000, 44100)

	out, err := Stitch(chunks, [][]float32{nil}, expected)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}

	want := int(math.Ceil(16001.0 / 16000.0 * 44100.0))
	if len(out) != want {
		t.Fatalf("Expected %d samples, got %d", want, len(out))
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("Sample %d is not zero: %f", i, s)
		}
	}
}

func TestStitchDurationIndependentOfChunking(t *testing.T) {
	length, src, dst := 16001, 16000, 44100
	want := OutputIndex(length, src, dst)

	chunkings := map[string][]Chunk{
		"single": {{0, length, false}},
		"three": {
			{0, 333, false},
			{333, 7777, true},
			{7777, length, false},
		},
		"tiny": func() []Chunk {
			var cs []Chunk
			silent := false
			for start := 0; start < length; start += 7 {
				end := start + 7
				if end > length {
					end = length
				}
				cs = append(cs, Chunk{start, end, silent})
				silent = !silent
			}
			return cs
		}(),
	}

	for name, chunks := range chunkings {
		t.Run(name, func(t *testing.T) {
			expected := ExpectedLengths(chunks, src, dst)

			// Engine output lengths deliberately off by a few samples either way
			outputs := make([][]float32, len(chunks))
			for i, n := range expected {
				outputs[i] = constant(n+(i%3)-1, 0.25)
			}

			out, err := Stitch(chunks, outputs, expected)
			if err != nil {
				t.Fatalf("Stitch failed: %v", err)
			}
			if len(out) != want {
				t.Errorf("Expected %d samples, got %d", want, len(out))
			}
		})
	}
}

func TestStitchOrderAndFit(t *testing.T) {
	chunks := []Chunk{{0, 2, false}, {2, 4, true}, {4, 6, false}}
	outputs := [][]float32{{1, 1, 1}, {9, 9}, {2}}
	expected := []int{2, 2, 2}

	out, err := Stitch(chunks, outputs, expected)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}

	want := []float32{1, 1, 0, 0, 2, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Index %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestStitchMismatch(t *testing.T) {
	if _, err := Stitch([]Chunk{{0, 1, false}}, nil, []int{1}); err == nil {
		t.Error("Expected error for missing outputs")
	}
	if _, err := Stitch([]Chunk{{0, 1, false}}, [][]float32{{1}}, []int{-1}); err == nil {
		t.Error("Expected error for negative length")
	}
}

func TestStitchEmpty(t *testing.T) {
	out, err := Stitch(nil, nil, nil)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %d samples", len(out))
	}
}

func TestPlanClips(t *testing.T) {
	clips := PlanClips(10, 4, 1)
	expected := []Clip{{0, 4, 0}, {4, 8, 1}, {8, 10, 1}}

	if len(clips) != len(expected) {
		t.Fatalf("Expected %d clips, got %d", len(expected), len(clips))
	}
	for i := range expected {
		if clips[i] != expected[i] {
			t.Errorf("Clip %d: expected %+v, got %+v", i, expected[i], clips[i])
		}
	}

	if clips := PlanClips(10, 0, 3); len(clips) != 1 || clips[0].End != 10 {
		t.Errorf("Expected single clip without clip length, got %+v", clips)
	}

	if clips := PlanClips(10, 3, 5); clips[1].Overlap != 3 {
		t.Errorf("Expected overlap capped at clip length, got %d", clips[1].Overlap)
	}

	if clips := PlanClips(0, 3, 0); clips != nil {
		t.Errorf("Expected no clips for empty input, got %+v", clips)
	}
}

func TestCrossfade(t *testing.T) {
	acc := []float32{1, 1, 1, 1}
	next := []float32{0, 0, 0, 0}

	full := Crossfade(acc, next, 2, 1)
	wantFull := []float32{1, 1, 2.0 / 3, 1.0 / 3, 0, 0}
	if len(full) != len(wantFull) {
		t.Fatalf("Expected %d samples, got %d", len(wantFull), len(full))
	}
	for i := range wantFull {
		if math.Abs(float64(full[i]-wantFull[i])) > 1e-6 {
			t.Errorf("Index %d: expected %f, got %f", i, wantFull[i], full[i])
		}
	}

	hard := Crossfade(acc, next, 2, 0)
	wantHard := []float32{1, 1, 1, 0, 0, 0}
	for i := range wantHard {
		if hard[i] != wantHard[i] {
			t.Errorf("Index %d: expected %f, got %f", i, wantHard[i], hard[i])
		}
	}

	if got := Crossfade(acc, next, 0, 0.75); len(got) != 8 {
		t.Errorf("Expected plain concatenation of 8 samples, got %d", len(got))
	}
}
