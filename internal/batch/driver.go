package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/errs"
	"github.com/skypro1111/svc-audio-service/internal/media"
	"github.com/skypro1111/svc-audio-service/internal/metrics"
	"github.com/skypro1111/svc-audio-service/internal/storage"
)

// Converter runs one conversion pass
type Converter interface {
	Convert(ctx context.Context, w audio.Waveform, req engine.Request) (engine.Result, error)
}

// Transcoder normalises inputs to WAV and encodes outputs
type Transcoder interface {
	ToWAV(ctx context.Context, src, dst string) error
	Encode(ctx context.Context, w audio.Waveform, format string) ([]byte, error)
}

// Config contains configuration for a batch run
type Config struct {
	InputDir      string
	OutputDir     string
	ProcessedDir  string // defaults to InputDir/processed
	ErrorDir      string // defaults to InputDir/error
	Extensions    []string
	Speakers      []string
	OutputFormat  string
	EngineTag     string
	PartialPolicy PartialPolicy
	Params        engine.Params // speaker is filled per pass
	Limits        engine.Limits // zero means engine.DefaultLimits
}

// Driver processes every file of the input directory in order
type Driver struct {
	config     Config
	converter  Converter
	transcoder Transcoder
	sink       storage.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDriver creates a new batch driver. sink and m may be nil.
func NewDriver(config Config, converter Converter, transcoder Transcoder, sink storage.Sink, logger *slog.Logger, m *metrics.Metrics) (*Driver, error) {
	if config.InputDir == "" || config.OutputDir == "" {
		return nil, errs.Validationf("dirs", "input and output directories are required")
	}

	if len(config.Speakers) == 0 {
		return nil, errs.Validationf("speakers", "at least one speaker is required")
	}

	for _, spk := range config.Speakers {
		p := config.Params
		p.Speaker = spk
		if err := p.ValidateWithin(config.Limits); err != nil {
			return nil, err
		}
	}

	format, err := media.ParseFormat(config.OutputFormat)
	if err != nil {
		return nil, err
	}
	config.OutputFormat = format

	if config.PartialPolicy == "" {
		config.PartialPolicy = PartialFail
	}
	if config.EngineTag == "" {
		config.EngineTag = "sovits"
	}
	if config.ProcessedDir == "" {
		config.ProcessedDir = filepath.Join(config.InputDir, "processed")
	}
	if config.ErrorDir == "" {
		config.ErrorDir = filepath.Join(config.InputDir, "error")
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".wav", ".flac", ".mp3", ".ogg"}
	}

	return &Driver{
		config:     config,
		converter:  converter,
		transcoder: transcoder,
		sink:       sink,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Discover lists the input files with a recognised extension, sorted by name
func (d *Driver) Discover() ([]string, error) {
	entries, err := os.ReadDir(d.config.InputDir)
	if err != nil {
		return nil, errs.Resource("discover", d.config.InputDir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if d.recognised(entry.Name()) {
			files = append(files, filepath.Join(d.config.InputDir, entry.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

func (d *Driver) recognised(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range d.config.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Run processes every discovered file in order. Cancellation is checked
// between files only; a file in progress always finishes. Run fails only when
// the input directory cannot be listed.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	files, err := d.Discover()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	d.metrics.RecordFilesDiscovered(len(files))

	if len(files) == 0 {
		d.logger.Info("No audio files found", slog.String("input_dir", d.config.InputDir))
		return summary, nil
	}

	if err := os.MkdirAll(d.config.OutputDir, 0755); err != nil {
		return nil, errs.Resource("mkdir", d.config.OutputDir, err)
	}

	d.logger.Info("Batch started",
		slog.Int("files", len(files)),
		slog.Any("speakers", d.config.Speakers),
		slog.String("format", d.config.OutputFormat),
	)

	for i, path := range files {
		if ctx.Err() != nil {
			summary.Skipped = len(files) - i
			d.logger.Warn("Batch cancelled", slog.Int("remaining", summary.Skipped))
			break
		}

		d.logger.Info("Processing file",
			slog.String("file", filepath.Base(path)),
			slog.Int("index", i+1),
			slog.Int("total", len(files)),
		)

		outcome := d.ProcessFile(context.WithoutCancel(ctx), path)
		summary.add(outcome)
		d.metrics.RecordFileProcessed(outcome.Status.String())

		if reason := outcome.Reason(); reason != nil {
			d.logger.Error("File processing failed",
				slog.String("file", filepath.Base(path)),
				slog.String("status", outcome.Status.String()),
				slog.String("error", reason.Error()),
			)
		}

		dst, err := d.Relocate(path, outcome.Status)
		if err != nil {
			summary.RelocateErrors++
			d.logger.Error("Failed to relocate source",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		d.logger.Info("File done",
			slog.String("file", filepath.Base(path)),
			slog.String("status", outcome.Status.String()),
			slog.Int("outputs", len(outcome.Outputs)),
			slog.String("moved_to", dst),
			slog.Duration("elapsed", outcome.Elapsed),
		)
	}

	summary.Elapsed = time.Since(start)
	d.logger.Info("Batch completed", slog.String("summary", summary.String()))

	return summary, nil
}

// ProcessFile converts one file for every configured speaker. It never
// returns an error; every failure is captured in the Outcome.
func (d *Driver) ProcessFile(ctx context.Context, path string) Outcome {
	start := time.Now()
	outcome := Outcome{Source: path, Status: StatusFailed}

	w, err := d.load(ctx, path)
	if err != nil {
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	for _, spk := range d.config.Speakers {
		out, size, err := d.convertSpeaker(ctx, path, w, spk)
		if err != nil {
			outcome.Failures = append(outcome.Failures, SpeakerError{Speaker: spk, Err: err})
			continue
		}
		outcome.Outputs = append(outcome.Outputs, out)
		outcome.Bytes += size
	}

	switch {
	case len(outcome.Failures) == 0:
		outcome.Status = StatusConverted
	case len(outcome.Outputs) > 0 && d.config.PartialPolicy == PartialSuccess:
		outcome.Status = StatusConverted
	default:
		outcome.Status = StatusFailed
	}

	outcome.Elapsed = time.Since(start)
	return outcome
}

// load decodes path, normalising non-WAV inputs through the transcoder first
func (d *Driver) load(ctx context.Context, path string) (audio.Waveform, error) {
	w, info, err := media.Load(ctx, d.transcoder, path)
	if err != nil {
		return audio.Waveform{}, err
	}

	d.logger.Debug("Input decoded",
		slog.String("file", filepath.Base(path)),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Float64("duration_seconds", info.Duration),
	)

	return w, nil
}

func (d *Driver) convertSpeaker(ctx context.Context, path string, w audio.Waveform, speaker string) (string, int64, error) {
	p := d.config.Params
	p.Speaker = speaker

	req, err := engine.NewRequestWithin(p, d.config.Limits)
	if err != nil {
		return "", 0, err
	}

	res, err := d.converter.Convert(ctx, w, req)
	if err != nil {
		return "", 0, err
	}

	data, err := d.transcoder.Encode(ctx, res.Waveform, d.config.OutputFormat)
	if err != nil {
		return "", 0, err
	}

	name := OutputName(path, p, d.config.EngineTag, d.config.OutputFormat)
	dst := filepath.Join(d.config.OutputDir, name)
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", 0, errs.Resource("write", dst, err)
	}

	if d.sink != nil {
		location, err := d.sink.Put(ctx, name, data, media.ContentType(d.config.OutputFormat))
		if err != nil {
			d.logger.Warn("Failed to mirror output", slog.String("file", name), slog.String("error", err.Error()))
		} else {
			d.logger.Debug("Output mirrored", slog.String("location", location))
		}
	}

	return dst, int64(len(data)), nil
}

// OutputName builds the result file name:
// {source name with extension}_{pitch}key_{speaker}_{engine tag}_{predictor}.{format}
func OutputName(source string, p engine.Params, engineTag, format string) string {
	return fmt.Sprintf("%s_%dkey_%s_%s_%s.%s",
		filepath.Base(source), p.PitchShift, p.Speaker, engineTag, p.F0Predictor, format)
}

// Relocate moves the source into the processed or error directory depending
// on status, creating the directory on demand
func (d *Driver) Relocate(path string, status Status) (string, error) {
	dir := d.config.ProcessedDir
	if status != StatusConverted {
		dir = d.config.ErrorDir
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.Resource("mkdir", dir, err)
	}

	dst := filepath.Join(dir, filepath.Base(path))
	if err := moveFile(path, dst); err != nil {
		return "", errs.Resource("relocate", path, err)
	}

	return dst, nil
}

// moveFile renames src to dst, copying across filesystems when rename fails
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	in.Close()
	return os.Remove(src)
}
