package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// Supported output containers
const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
	FormatOGG  = "ogg"
	FormatMP3  = "mp3"
)

var contentTypes = map[string]string{
	FormatWAV:  "audio/wav",
	FormatFLAC: "audio/flac",
	FormatOGG:  "audio/ogg",
	FormatMP3:  "audio/mpeg",
}

// ParseFormat normalises and validates an output format name
func ParseFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if _, ok := contentTypes[f]; !ok {
		return "", errs.Validationf("format", "unsupported audio format %q", format)
	}
	return f, nil
}

// ContentType returns the MIME type of a supported format
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsWAV reports whether path has a .wav extension
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// Transcoder runs ffmpeg for container conversion
type Transcoder struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewTranscoder creates a transcoder using the ffmpeg binary at ffmpegPath
func NewTranscoder(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath, logger: logger}
}

// Available reports whether the ffmpeg binary can be found
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// ToWAV converts src to a mono 16-bit PCM WAV file at dst, keeping the source sample rate
func (t *Transcoder) ToWAV(ctx context.Context, src, dst string) error {
	// ffmpeg -y -i input -ac 1 -c:a pcm_s16le -f wav output
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", src, "-ac", "1", "-c:a", "pcm_s16le", "-f", "wav", dst}

	if _, err := t.run(ctx, args, nil); err != nil {
		return errs.Resource("transcode", src, err)
	}

	t.logger.Debug("Input normalised to WAV", slog.String("src", src), slog.String("dst", dst))
	return nil
}

// Encode renders w in format. WAV is encoded in-process; other formats go
// through ffmpeg over stdin/stdout.
func (t *Transcoder) Encode(ctx context.Context, w audio.Waveform, format string) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	wavData, err := audio.EncodeWAVBytes(w)
	if err != nil {
		return nil, errs.Conversion("encode", err)
	}

	if format == FormatWAV {
		return wavData, nil
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0", "-f", format, "pipe:1"}
	out, err := t.run(ctx, args, wavData)
	if err != nil {
		return nil, errs.Conversion("encode", fmt.Errorf("%s: %w", format, err))
	}

	return out, nil
}

func (t *Transcoder) run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	return stdout.Bytes(), nil
}
