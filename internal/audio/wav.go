package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a readable WAV stream
var ErrInvalidWAV = errors.New("invalid WAV data")

// ErrUnsupportedEncoding is returned for WAV sample encodings other than
// integer PCM and IEEE float
var ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")

// OutputBitDepth is the PCM bit depth of encoded output
const OutputBitDepth = 16

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// WAVInfo describes a decoded WAV stream
type WAVInfo struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bits_per_sample"`
	Float      bool    `json:"float,omitempty"`
	NumSamples int     `json:"num_samples"`
	Duration   float64 `json:"duration_seconds"`
}

// DecodeWAV reads an integer PCM or IEEE float WAV stream and downmixes it to
// a mono Waveform
func DecodeWAV(r io.ReadSeeker) (Waveform, *WAVInfo, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Waveform{}, nil, ErrInvalidWAV
	}

	sampleRate := int(decoder.SampleRate)
	if sampleRate <= 0 {
		return Waveform{}, nil, fmt.Errorf("%w: missing sample rate", ErrInvalidWAV)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		return Waveform{}, nil, fmt.Errorf("%w: channel count %d", ErrInvalidWAV, channels)
	}

	var (
		samples  []float32
		bitDepth int
		err      error
	)

	isFloat := decoder.WavAudioFormat == wavFormatIEEEFloat
	switch decoder.WavAudioFormat {
	case wavFormatIEEEFloat:
		bitDepth = int(decoder.BitDepth)
		samples, err = decodeFloat(decoder, channels, bitDepth)
	case wavFormatPCM, wavFormatExtensible:
		samples, bitDepth, err = decodePCM(decoder, channels)
	default:
		return Waveform{}, nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, decoder.WavAudioFormat)
	}
	if err != nil {
		return Waveform{}, nil, err
	}

	info := &WAVInfo{
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		Float:      isFloat,
		NumSamples: len(samples),
		Duration:   float64(len(samples)) / float64(sampleRate),
	}

	return wrap(samples, sampleRate), info, nil
}

// decodePCM reads integer samples through the go-audio buffer
func decodePCM(decoder *wav.Decoder, channels int) ([]float32, int, error) {
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM buffer: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedEncoding, bitDepth)
	}

	return downmix(buf.Data, channels, bitDepth), bitDepth, nil
}

// decodeFloat reads little-endian 32 or 64-bit IEEE float frames. The
// go-audio buffer only decodes integers.
func decodeFloat(decoder *wav.Decoder, channels, bitDepth int) ([]float32, error) {
	if bitDepth != 32 && bitDepth != 64 {
		return nil, fmt.Errorf("%w: %d-bit float", ErrUnsupportedEncoding, bitDepth)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate data chunk: %w", err)
	}
	if decoder.PCMChunk == nil {
		return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
	}

	raw, err := io.ReadAll(decoder.PCMChunk.R)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample data: %w", err)
	}

	width := bitDepth / 8
	frames := len(raw) / (width * channels)
	out := make([]float32, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * width
			var v float64
			if width == 4 {
				v = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
			} else {
				v = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			sum += v
		}
		out[i] = float32(sum / float64(channels))
	}

	return out, nil
}

// downmix averages interleaved integer frames into normalised mono samples
func downmix(data []int, channels, bitDepth int) []float32 {
	frames := len(data) / channels
	out := make([]float32, frames)

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit PCM is unsigned
		offset = scale
	}

	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}

	return out
}

// EncodeWAV writes w as 16-bit mono PCM WAV
func EncodeWAV(out io.WriteSeeker, w Waveform) error {
	if w.sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", w.sampleRate)
	}

	encoder := wav.NewEncoder(out, w.sampleRate, OutputBitDepth, 1, 1)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.sampleRate},
		Data:           quantize(w.samples),
		SourceBitDepth: OutputBitDepth,
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}

	return nil
}

// quantize converts normalised samples to clamped 16-bit integers
func quantize(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}

// EncodeWAVBytes encodes w into an in-memory WAV file
func EncodeWAVBytes(w Waveform) ([]byte, error) {
	ws := &writeSeeker{buf: make([]byte, 0, 44+w.Len()*2)}
	if err := EncodeWAV(ws, w); err != nil {
		return nil, err
	}
	return ws.Bytes(), nil
}

// DecodeWAVBytes decodes an in-memory WAV file
func DecodeWAVBytes(data []byte) (Waveform, *WAVInfo, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// ReadWAVFile decodes the WAV file at path
func ReadWAVFile(path string) (Waveform, *WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, nil, err
	}
	defer f.Close()

	return DecodeWAV(f)
}

// WriteWAVFile encodes w to path, replacing any existing file
func WriteWAVFile(path string, w Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := EncodeWAV(f, w); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
