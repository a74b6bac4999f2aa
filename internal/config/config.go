package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/media"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	Conversion ConversionConfig `yaml:"conversion"`
	Batch      BatchConfig      `yaml:"batch"`
	Storage    StorageConfig    `yaml:"storage"`
	Media      MediaConfig      `yaml:"media"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address      string   `yaml:"address"`
	Port         int      `yaml:"port"`
	ReadTimeout  int      `yaml:"read_timeout"`  // seconds
	WriteTimeout int      `yaml:"write_timeout"` // seconds
	CORSOrigins  []string `yaml:"cors_origins"`
	RateLimit    int      `yaml:"rate_limit"` // conversions per minute per client, 0 disables
}

// EngineConfig contains inference engine configuration
type EngineConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Timeout    int    `yaml:"timeout"` // seconds
	ModelPath  string `yaml:"model_path"`
	ConfigPath string `yaml:"config_path"`
	Device     string `yaml:"device"`
	Tag        string `yaml:"tag"` // engine name used in output file names
}

// SegmenterConfig contains silence segmentation parameters
type SegmenterConfig struct {
	ThresholdDB   float64 `yaml:"threshold_db"`
	HopMS         int     `yaml:"hop_ms"`
	MinIntervalMS int     `yaml:"min_interval_ms"`
}

// ConversionConfig contains default conversion parameters
type ConversionConfig struct {
	PitchShift      int     `yaml:"pitch_shift"`
	F0Predictor     string  `yaml:"f0_predictor"`
	ClusterRatio    float64 `yaml:"cluster_ratio"`
	AutoF0          bool    `yaml:"auto_f0"`
	NoiseScale      float64 `yaml:"noise_scale"`
	PadSeconds      float64 `yaml:"pad_seconds"`
	ClipSeconds     float64 `yaml:"clip_seconds"`
	SilenceGap      int     `yaml:"silence_gap"` // milliseconds
	SilenceGapRatio float64 `yaml:"silence_gap_ratio"`
	MaxPadSeconds   float64 `yaml:"max_pad_seconds"`
	MaxClipSeconds  float64 `yaml:"max_clip_seconds"`
}

// BatchConfig contains batch driver configuration
type BatchConfig struct {
	InputDir      string   `yaml:"input_dir"`
	OutputDir     string   `yaml:"output_dir"`
	ProcessedDir  string   `yaml:"processed_dir"`
	ErrorDir      string   `yaml:"error_dir"`
	Extensions    []string `yaml:"extensions"`
	Speakers      []string `yaml:"speakers"`
	OutputFormat  string   `yaml:"output_format"`
	PartialPolicy string   `yaml:"partial_policy"`
}

// StorageConfig contains the optional S3 mirror configuration
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// MediaConfig contains external tool configuration
type MediaConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for keys missing from the file
func Default() Config {
	params := engine.DefaultParams()
	limits := engine.DefaultLimits()

	return Config{
		Server: ServerConfig{
			Address:      "0.0.0.0",
			Port:         1145,
			ReadTimeout:  60,
			WriteTimeout: 600,
			CORSOrigins:  []string{"*"},
		},
		Engine: EngineConfig{
			Endpoint: "http://127.0.0.1:9000",
			Timeout:  120,
			Device:   "cuda",
			Tag:      "sovits",
		},
		Segmenter: SegmenterConfig{
			ThresholdDB:   audio.DefaultThresholdDB,
			HopMS:         20,
			MinIntervalMS: 300,
		},
		Conversion: ConversionConfig{
			F0Predictor:     string(params.F0Predictor),
			ClusterRatio:    params.ClusterRatio,
			AutoF0:          params.AutoF0,
			NoiseScale:      params.NoiseScale,
			PadSeconds:      params.PadSeconds,
			ClipSeconds:     params.ClipSeconds,
			SilenceGap:      params.SilenceGap,
			SilenceGapRatio: params.SilenceGapRatio,
			MaxPadSeconds:   limits.MaxPadSeconds,
			MaxClipSeconds:  limits.MaxClipSeconds,
		},
		Batch: BatchConfig{
			InputDir:      "raw",
			OutputDir:     "results",
			Extensions:    []string{".wav", ".flac", ".mp3", ".ogg"},
			OutputFormat:  media.FormatFLAC,
			PartialPolicy: "fail",
		},
		Media: MediaConfig{
			FFmpegPath: "ffmpeg",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, applies SVC_* environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides endpoints and secrets from SVC_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SVC_ENGINE_ENDPOINT":    &c.Engine.Endpoint,
		"SVC_ENGINE_MODEL_PATH":  &c.Engine.ModelPath,
		"SVC_ENGINE_CONFIG_PATH": &c.Engine.ConfigPath,
		"SVC_ENGINE_DEVICE":      &c.Engine.Device,
		"SVC_STORAGE_ENDPOINT":   &c.Storage.Endpoint,
		"SVC_STORAGE_BUCKET":     &c.Storage.Bucket,
		"SVC_STORAGE_ACCESS_KEY": &c.Storage.AccessKey,
		"SVC_STORAGE_SECRET_KEY": &c.Storage.SecretKey,
		"SVC_LOG_LEVEL":          &c.Logging.Level,
		"SVC_FFMPEG_PATH":        &c.Media.FFmpegPath,
	}

	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("SVC_SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SVC_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}

	if v, ok := lookup("SVC_STORAGE_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SVC_STORAGE_ENABLED: %w", err)
		}
		c.Storage.Enabled = enabled
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Conversion.Validate(); err != nil {
		return fmt.Errorf("conversion config: %w", err)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %d", s.RateLimit)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.Tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if math.IsNaN(s.ThresholdDB) {
		return fmt.Errorf("threshold_db must be a number")
	}

	if s.HopMS < 1 {
		return fmt.Errorf("hop_ms must be at least 1, got %d", s.HopMS)
	}

	if s.MinIntervalMS < 0 {
		return fmt.Errorf("min_interval_ms cannot be negative, got %d", s.MinIntervalMS)
	}

	return nil
}

// Validate validates the default conversion parameters. The speaker is
// supplied per request, so a placeholder is used here.
func (c *ConversionConfig) Validate() error {
	if err := c.Limits().Validate(); err != nil {
		return err
	}

	_, err := c.Params("default")
	return err
}

// Validate validates batch configuration
func (b *BatchConfig) Validate() error {
	if b.InputDir == "" {
		return fmt.Errorf("input_dir cannot be empty")
	}

	if b.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if len(b.Extensions) == 0 {
		return fmt.Errorf("extensions cannot be empty")
	}

	if _, err := media.ParseFormat(b.OutputFormat); err != nil {
		return fmt.Errorf("output_format: %w", err)
	}

	validPolicies := map[string]bool{"fail": true, "success": true}
	if !validPolicies[b.PartialPolicy] {
		return fmt.Errorf("partial_policy must be 'fail' or 'success', got '%s'", b.PartialPolicy)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when storage is enabled")
	}

	if s.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty when storage is enabled")
	}

	if s.AccessKey == "" || s.SecretKey == "" {
		return fmt.Errorf("access_key and secret_key are required when storage is enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Params builds conversion parameters for speaker from the defaults
func (c *ConversionConfig) Params(speaker string) (engine.Params, error) {
	predictor, err := engine.ParseF0Predictor(strings.ToLower(c.F0Predictor))
	if err != nil {
		return engine.Params{}, err
	}

	p := engine.Params{
		Speaker:         speaker,
		PitchShift:      c.PitchShift,
		F0Predictor:     predictor,
		ClusterRatio:    c.ClusterRatio,
		AutoF0:          c.AutoF0,
		NoiseScale:      c.NoiseScale,
		PadSeconds:      c.PadSeconds,
		ClipSeconds:     c.ClipSeconds,
		SilenceGap:      c.SilenceGap,
		SilenceGapRatio: c.SilenceGapRatio,
	}

	return p, p.ValidateWithin(c.Limits())
}

// Limits returns the configured parameter bounds
func (c *ConversionConfig) Limits() engine.Limits {
	return engine.Limits{MaxPadSeconds: c.MaxPadSeconds, MaxClipSeconds: c.MaxClipSeconds}
}

// EngineSpec returns the model to load at startup
func (e *EngineConfig) EngineSpec() engine.Spec {
	return engine.Spec{ModelPath: e.ModelPath, ConfigPath: e.ConfigPath, Device: e.Device}
}

// Sanitized returns a copy safe to expose over the API
func (c Config) Sanitized() Config {
	if c.Storage.AccessKey != "" {
		c.Storage.AccessKey = "***"
	}
	if c.Storage.SecretKey != "" {
		c.Storage.SecretKey = "***"
	}
	return c
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the engine timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetHopDuration returns the segmenter hop as a time.Duration
func (s *SegmenterConfig) GetHopDuration() time.Duration {
	return time.Duration(s.HopMS) * time.Millisecond
}

// GetMinIntervalDuration returns the minimum silence gap as a time.Duration
func (s *SegmenterConfig) GetMinIntervalDuration() time.Duration {
	return time.Duration(s.MinIntervalMS) * time.Millisecond
}

// SegmenterSettings converts the section into segmenter settings
func (s *SegmenterConfig) SegmenterSettings() audio.SegmenterConfig {
	return audio.SegmenterConfig{
		HopDuration: s.GetHopDuration(),
		MinInterval: s.GetMinIntervalDuration(),
	}
}
