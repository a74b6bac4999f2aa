package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

var (
	// ErrNoEngine is returned when no engine instance is active
	ErrNoEngine = errors.New("no active inference engine")

	// ErrUnknownSpeaker is returned for speakers the loaded model does not know
	ErrUnknownSpeaker = errors.New("unknown speaker")
)

// Engine converts padded waveforms to the target voice.
// Implementations are not safe for concurrent use; access goes through Handle.
type Engine interface {
	// Convert runs inference on one padded chunk
	Convert(ctx context.Context, in audio.Waveform, req Request) (Result, error)

	// ResetCache drops transient state held between conversions
	ResetCache(ctx context.Context) error

	// TargetSampleRate is the output sample rate of the loaded model
	TargetSampleRate() int

	// Speakers maps speaker names to model ids; empty when unknown
	Speakers() map[string]int

	// Close releases the engine
	Close() error
}

// Result is the engine output for one chunk
type Result struct {
	Waveform   audio.Waveform
	SampleRate int
}

// Spec identifies the model an engine is loaded from
type Spec struct {
	ModelPath  string `json:"model_path"`
	ConfigPath string `json:"config_path"`
	Device     string `json:"device,omitempty"`
}

// Validate checks the required paths are present
func (s Spec) Validate() error {
	if s.ModelPath == "" {
		return errs.Validationf("model_path", "model path is required")
	}
	if s.ConfigPath == "" {
		return errs.Validationf("config_path", "config path is required")
	}
	return nil
}

// Loader creates engines from a Spec
type Loader interface {
	Load(ctx context.Context, spec Spec) (Engine, error)
}

// ResolveSpeaker maps speaker (a name or a numeric model id) onto a speaker
// name known to e. Engines that report no speakers accept any value.
func ResolveSpeaker(e Engine, speaker string) (string, error) {
	speakers := e.Speakers()
	if len(speakers) == 0 {
		return speaker, nil
	}

	if _, ok := speakers[speaker]; ok {
		return speaker, nil
	}

	if id, err := strconv.Atoi(speaker); err == nil {
		for name, sid := range speakers {
			if sid == id {
				return name, nil
			}
		}
	}

	return "", errs.Validation("speaker", fmt.Errorf("%w: %s", ErrUnknownSpeaker, speaker))
}

// SpeakerNames returns the speaker names of e ordered by model id
func SpeakerNames(e Engine) []string {
	speakers := e.Speakers()
	names := make([]string, 0, len(speakers))
	for name := range speakers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if speakers[names[i]] == speakers[names[j]] {
			return names[i] < names[j]
		}
		return speakers[names[i]] < speakers[names[j]]
	})
	return names
}
