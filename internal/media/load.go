package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

// WAVConverter normalises an input file to WAV
type WAVConverter interface {
	ToWAV(ctx context.Context, src, dst string) error
}

// Load decodes the audio file at path. Non-WAV inputs, and WAV files in an
// encoding the decoder does not read, are converted to a temporary WAV file
// first. A missing file yields a ResourceError wrapping fs.ErrNotExist.
func Load(ctx context.Context, conv WAVConverter, path string) (audio.Waveform, *audio.WAVInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return audio.Waveform{}, nil, errs.Resource("open", path, err)
	}
	if st.IsDir() {
		return audio.Waveform{}, nil, errs.Validationf("audio_path", "%s is a directory", path)
	}

	if !IsWAV(path) {
		return loadConverted(ctx, conv, path)
	}

	w, info, err := audio.ReadWAVFile(path)
	if errors.Is(err, audio.ErrUnsupportedEncoding) {
		return loadConverted(ctx, conv, path)
	}
	if err != nil {
		return audio.Waveform{}, nil, errs.Resource("decode", path, err)
	}

	return w, info, nil
}

// loadConverted transcodes path to a temporary PCM WAV and decodes it
func loadConverted(ctx context.Context, conv WAVConverter, path string) (audio.Waveform, *audio.WAVInfo, error) {
	tmp := filepath.Join(os.TempDir(), "svc-"+uuid.NewString()+".wav")
	defer os.Remove(tmp)

	if err := conv.ToWAV(ctx, path, tmp); err != nil {
		return audio.Waveform{}, nil, errs.Resource("transcode", path, err)
	}

	w, info, err := audio.ReadWAVFile(tmp)
	if err != nil {
		return audio.Waveform{}, nil, errs.Resource("decode", path, err)
	}

	return w, info, nil
}
