package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/svc-audio-service/internal/batch"
	"github.com/skypro1111/svc-audio-service/internal/config"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/logging"
	"github.com/skypro1111/svc-audio-service/internal/media"
	"github.com/skypro1111/svc-audio-service/internal/metrics"
	"github.com/skypro1111/svc-audio-service/internal/pipeline"
	"github.com/skypro1111/svc-audio-service/internal/storage"
)

const defaultConfigPath = "configs/config.yaml"

type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

// options holds the command line; set records which flags were given
type options struct {
	configPath  string
	modelPath   string
	modelConfig string
	pitch       int
	speakers    stringSlice
	clip        float64
	device      string
	f0Predictor string
	set         map[string]bool
}

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: map[string]bool{}}

	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to configuration file")
	fs.StringVar(&opts.modelPath, "m", "", "Model path")
	fs.StringVar(&opts.modelConfig, "c", "", "Model config path")
	fs.IntVar(&opts.pitch, "t", 0, "Pitch shift in semitones")
	fs.Var(&opts.speakers, "s", "Target speaker (repeatable or comma-separated)")
	fs.Float64Var(&opts.clip, "cl", 0, "Force-split voiced audio into clips of this many seconds, 0 disables")
	fs.StringVar(&opts.device, "d", "", "Inference device")
	fs.StringVar(&opts.f0Predictor, "f0p", "", "F0 predictor: crepe, pm, dio, harvest, rmvpe, fcpe")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	// Trailing arguments are extra speakers: -s alice bob
	for _, extra := range fs.Args() {
		if err := opts.speakers.Set(extra); err != nil {
			return nil, err
		}
	}

	if opts.set["f0p"] {
		if _, err := engine.ParseF0Predictor(opts.f0Predictor); err != nil {
			return nil, err
		}
	}

	return opts, nil
}

// apply overrides cfg with the flags that were given
func (o *options) apply(cfg *config.Config) {
	if o.modelPath != "" {
		cfg.Engine.ModelPath = o.modelPath
	}
	if o.modelConfig != "" {
		cfg.Engine.ConfigPath = o.modelConfig
	}
	if o.device != "" {
		cfg.Engine.Device = o.device
	}
	if o.set["t"] {
		cfg.Conversion.PitchShift = o.pitch
	}
	if o.set["cl"] {
		cfg.Conversion.ClipSeconds = o.clip
	}
	if o.set["f0p"] {
		cfg.Conversion.F0Predictor = o.f0Predictor
	}
	if len(o.speakers) > 0 {
		cfg.Batch.Speakers = o.speakers
	}
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("Batch failed", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Cancellation stops the run after the file in progress
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())

	if len(cfg.Batch.Speakers) == 0 {
		return fmt.Errorf("no target speakers: pass -s or set batch.speakers")
	}

	// Speaker is replaced per pass by the driver
	params, err := cfg.Conversion.Params(cfg.Batch.Speakers[0])
	if err != nil {
		return err
	}

	policy, err := batch.ParsePartialPolicy(cfg.Batch.PartialPolicy)
	if err != nil {
		return err
	}

	loader, err := engine.NewRemoteLoader(engine.RemoteConfig{
		Endpoint: cfg.Engine.Endpoint,
		Timeout:  cfg.Engine.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		return err
	}

	handle, err := engine.NewHandle(ctx, loader, cfg.Engine.EngineSpec(), logger)
	if err != nil {
		return fmt.Errorf("failed to load inference engine: %w", err)
	}
	defer handle.Close()

	conv, err := pipeline.New(handle, pipeline.Config{
		ThresholdDB: cfg.Segmenter.ThresholdDB,
		Segmenter:   cfg.Segmenter.SegmenterSettings(),
	}, logger, appMetrics)
	if err != nil {
		return err
	}

	var sink storage.Sink
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Sink(ctx, storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect object storage: %w", err)
		}
		sink = s3
		logger.Info("Mirroring outputs to object storage",
			slog.String("endpoint", cfg.Storage.Endpoint),
			slog.String("bucket", cfg.Storage.Bucket),
		)
	}

	driver, err := batch.NewDriver(batch.Config{
		InputDir:      cfg.Batch.InputDir,
		OutputDir:     cfg.Batch.OutputDir,
		ProcessedDir:  cfg.Batch.ProcessedDir,
		ErrorDir:      cfg.Batch.ErrorDir,
		Extensions:    cfg.Batch.Extensions,
		Speakers:      cfg.Batch.Speakers,
		OutputFormat:  cfg.Batch.OutputFormat,
		EngineTag:     cfg.Engine.Tag,
		PartialPolicy: policy,
		Params:        params,
		Limits:        cfg.Conversion.Limits(),
	}, conv, media.NewTranscoder(cfg.Media.FFmpegPath, logger), sink, logger, appMetrics)
	if err != nil {
		return err
	}

	summary, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(summary.String())
	return nil
}
