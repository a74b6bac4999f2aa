package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/errs"
	"github.com/skypro1111/svc-audio-service/internal/metrics"
)

// Config contains configuration for the conversion pipeline
type Config struct {
	ThresholdDB float64
	Segmenter   audio.SegmenterConfig
}

// DefaultConfig returns the segmentation settings of the batch driver
func DefaultConfig() Config {
	return Config{
		ThresholdDB: audio.DefaultThresholdDB,
		Segmenter:   audio.DefaultSegmenterConfig(),
	}
}

// Pipeline converts whole waveforms through the engine owned by a Handle
type Pipeline struct {
	handle      *engine.Handle
	segmenter   *audio.Segmenter
	thresholdDB float64
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates a new pipeline. m may be nil.
func New(handle *engine.Handle, config Config, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if handle == nil {
		return nil, fmt.Errorf("engine handle is required")
	}

	if math.IsNaN(config.ThresholdDB) {
		return nil, fmt.Errorf("threshold must be a number")
	}

	segmenter, err := audio.NewSegmenter(config.Segmenter)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	return &Pipeline{
		handle:      handle,
		segmenter:   segmenter,
		thresholdDB: config.ThresholdDB,
		logger:      logger,
		metrics:     m,
	}, nil
}

// Convert runs one pass of w for the speaker in req. The engine is held for
// the whole pass and its cache is reset exactly once afterwards, whether the
// pass succeeded or not.
func (p *Pipeline) Convert(ctx context.Context, w audio.Waveform, req engine.Request) (engine.Result, error) {
	start := time.Now()

	var result engine.Result
	err := p.handle.Do(ctx, func(e engine.Engine) error {
		defer p.resetCache(ctx, e)

		var err error
		result, err = p.run(ctx, e, w, req)
		return err
	})

	p.metrics.RecordConversion(err == nil, time.Since(start).Seconds(), w.Seconds())

	if err != nil {
		p.logger.Warn("Conversion failed",
			slog.String("request", req.String()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return engine.Result{}, errs.Conversion("convert", err)
	}

	p.logger.Info("Conversion completed",
		slog.String("request", req.String()),
		slog.Float64("input_seconds", w.Seconds()),
		slog.Int("output_samples", result.Waveform.Len()),
		slog.Int("sample_rate", result.SampleRate),
		slog.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

func (p *Pipeline) resetCache(ctx context.Context, e engine.Engine) {
	if err := e.ResetCache(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("Failed to reset engine cache", slog.String("error", err.Error()))
		return
	}
	p.metrics.RecordCacheReset()
}

func (p *Pipeline) run(ctx context.Context, e engine.Engine, w audio.Waveform, req engine.Request) (engine.Result, error) {
	speaker, err := engine.ResolveSpeaker(e, req.Params().Speaker)
	if err != nil {
		return engine.Result{}, err
	}

	req, err = req.WithSpeaker(speaker)
	if err != nil {
		return engine.Result{}, err
	}

	target := e.TargetSampleRate()
	if target <= 0 {
		return engine.Result{}, errs.Conversion("engine", fmt.Errorf("invalid target sample rate %d", target))
	}

	if w.IsEmpty() {
		return engine.Result{Waveform: audio.Silence(0, target), SampleRate: target}, nil
	}

	chunks, err := p.segmenter.Segment(w, p.thresholdDB)
	if err != nil {
		return engine.Result{}, errs.Conversion("segment", err)
	}

	voiced, silent := audio.CountChunks(chunks)
	p.metrics.RecordChunks(voiced, silent)
	p.logger.Debug("Waveform segmented",
		slog.Int("voiced", voiced),
		slog.Int("silent", silent),
		slog.Int("samples", w.Len()),
	)

	expected := audio.ExpectedLengths(chunks, w.SampleRate(), target)
	outputs := make([][]float32, len(chunks))

	for i, c := range chunks {
		if c.Silent {
			continue
		}

		if err := ctx.Err(); err != nil {
			return engine.Result{}, err
		}

		out, err := p.convertChunk(ctx, e, w, c, req, target)
		if err != nil {
			return engine.Result{}, fmt.Errorf("chunk %d [%d, %d): %w", i, c.Start, c.End, err)
		}
		outputs[i] = out
	}

	stitched, err := audio.Stitch(chunks, outputs, expected)
	if err != nil {
		return engine.Result{}, errs.Conversion("stitch", err)
	}

	out, err := audio.NewWaveform(stitched, target)
	if err != nil {
		return engine.Result{}, errs.Conversion("stitch", err)
	}

	return engine.Result{Waveform: out, SampleRate: target}, nil
}

// convertChunk sends one voiced chunk to the engine, split into clips when
// ClipSeconds is set, and returns output on the target rate grid
func (p *Pipeline) convertChunk(ctx context.Context, e engine.Engine, w audio.Waveform, c audio.Chunk, req engine.Request, target int) ([]float32, error) {
	params := req.Params()
	rate := w.SampleRate()

	piece, err := w.Slice(c.Start, c.End)
	if err != nil {
		return nil, errs.Conversion("slice", err)
	}
	samples := piece.Samples()

	clipLen := secondsToSamples(params.ClipSeconds, rate)
	overlap := secondsToSamples(float64(params.SilenceGap)/1000, rate)
	clips := audio.PlanClips(len(samples), clipLen, overlap)

	var acc []float32
	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in := audio.Pad(samples[clip.InputStart():clip.End], params.PadSeconds, rate)
		padded, err := audio.NewWaveform(in, rate)
		if err != nil {
			return nil, errs.Conversion("pad", err)
		}

		callStart := time.Now()
		res, err := e.Convert(ctx, padded, req)
		p.metrics.RecordEngineCall(float64(clip.End-clip.InputStart())/float64(rate), time.Since(callStart).Seconds(), err)
		if err != nil {
			return nil, errs.Conversion("infer", err)
		}

		if res.SampleRate != target {
			return nil, errs.Conversion("infer", fmt.Errorf("engine returned %d Hz, expected %d Hz", res.SampleRate, target))
		}

		abs := audio.Chunk{Start: c.Start + clip.InputStart(), End: c.Start + clip.End}
		out := audio.FitLength(audio.Unpad(res.Waveform.Samples(), params.PadSeconds, target), audio.ExpectedLength(abs, rate, target))

		if acc == nil {
			acc = out
			continue
		}

		outOverlap := audio.OutputIndex(c.Start+clip.Start, rate, target) - audio.OutputIndex(abs.Start, rate, target)
		acc = audio.Crossfade(acc, out, outOverlap, params.SilenceGapRatio)
	}

	return acc, nil
}

func secondsToSamples(seconds float64, sampleRate int) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(sampleRate)))
}
