package media

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// wavWriter "transcodes" by writing a fixed waveform to dst
type wavWriter struct {
	w     audio.Waveform
	calls int
	err   error
}

func (c *wavWriter) ToWAV(ctx context.Context, src, dst string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	return audio.WriteWAVFile(dst, c.w)
}

func testWave(t *testing.T, n, rate int) audio.Waveform {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	w, err := audio.NewWaveform(samples, rate)
	if err != nil {
		t.Fatalf("NewWaveform failed: %v", err)
	}
	return w
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := audio.WriteWAVFile(path, testWave(t, 800, 16000)); err != nil {
		t.Fatalf("WriteWAVFile failed: %v", err)
	}

	conv := &wavWriter{}
	w, info, err := Load(context.Background(), conv, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if w.Len() != 800 {
		t.Errorf("Expected 800 samples, got %d", w.Len())
	}
	if info.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", info.SampleRate)
	}
	if conv.calls != 0 {
		t.Errorf("Expected no transcoding for WAV input, got %d calls", conv.calls)
	}
}

func TestLoadTranscodesOtherFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.flac")
	if err := os.WriteFile(path, []byte("not really flac"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	conv := &wavWriter{w: testWave(t, 441, 44100)}
	w, _, err := Load(context.Background(), conv, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if conv.calls != 1 {
		t.Errorf("Expected 1 transcode call, got %d", conv.calls)
	}
	if w.SampleRate() != 44100 || w.Len() != 441 {
		t.Errorf("Expected 441 samples at 44100 Hz, got %d at %d Hz", w.Len(), w.SampleRate())
	}
}

func TestLoadTranscodesUnreadableWAVEncodings(t *testing.T) {
	// Minimal 8 kHz A-law WAV: format tag 6
	header := []byte{
		'R', 'I', 'F', 'F', 40, 0, 0, 0, 'W', 'A', 'V', 'E',
		'f', 'm', 't', ' ', 16, 0, 0, 0,
		6, 0, 1, 0, 0x40, 0x1f, 0, 0, 0x40, 0x1f, 0, 0, 1, 0, 8, 0,
		'd', 'a', 't', 'a', 4, 0, 0, 0,
		0xd5, 0x55, 0xd5, 0x55,
	}
	path := filepath.Join(t.TempDir(), "alaw.wav")
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	conv := &wavWriter{w: testWave(t, 80, 8000)}
	w, _, err := Load(context.Background(), conv, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if conv.calls != 1 {
		t.Errorf("Expected 1 transcode call, got %d", conv.calls)
	}
	if w.Len() != 80 {
		t.Errorf("Expected 80 samples, got %d", w.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("RIFF nonsense"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	mp3 := filepath.Join(dir, "in.mp3")
	if err := os.WriteFile(mp3, []byte("id3"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		conv     *wavWriter
		wantKind errs.Kind
		notExist bool
	}{
		{"missing file", filepath.Join(dir, "missing.wav"), &wavWriter{}, errs.KindResource, true},
		{"directory", dir, &wavWriter{}, errs.KindValidation, false},
		{"undecodable", garbage, &wavWriter{}, errs.KindResource, false},
		{"transcode failure", mp3, &wavWriter{err: errors.New("ffmpeg exited 1")}, errs.KindResource, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(context.Background(), tt.conv, tt.path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}

			if kind := errs.KindOf(err); kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, kind)
			}

			if got := errors.Is(err, fs.ErrNotExist); got != tt.notExist {
				t.Errorf("Expected errors.Is(fs.ErrNotExist) = %v, got %v", tt.notExist, got)
			}
		})
	}
}
