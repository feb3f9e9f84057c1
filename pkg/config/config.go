// Package config loads the voicemood configuration from defaults, an
// optional YAML file, VOICEMOOD_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/haivivi/voicemood/pkg/features"
)

// EnvPrefix is the prefix of environment overrides; the key
// features.n_mfcc is read from VOICEMOOD_FEATURES_N_MFCC.
const EnvPrefix = "VOICEMOOD"

// FileName is the config file looked up in the working directory when no
// file is given.
const FileName = "voicemood"

// Audio sources.
const (
	SourcePortAudio = "portaudio"
	SourceStream    = "stream"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio" json:"audio"`
	Features FeaturesConfig `mapstructure:"features" yaml:"features" json:"features"`
	Models   ModelsConfig   `mapstructure:"models" yaml:"models" json:"models"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history" json:"history"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate"`
	Source     string `mapstructure:"source" yaml:"source" json:"source"`
	// DeviceRate is the capture rate of the local device; zero means
	// SampleRate.
	DeviceRate int           `mapstructure:"device_rate" yaml:"device_rate" json:"device_rate"`
	Buffer     time.Duration `mapstructure:"buffer" yaml:"buffer" json:"buffer"`
}

type FeaturesConfig struct {
	NMFCC           int     `mapstructure:"n_mfcc" yaml:"n_mfcc" json:"n_mfcc"`
	MinDuration     float64 `mapstructure:"min_duration" yaml:"min_duration" json:"min_duration"`
	SilenceRMS      float64 `mapstructure:"silence_rms" yaml:"silence_rms" json:"silence_rms"`
	ClipRMS         float64 `mapstructure:"clip_rms" yaml:"clip_rms" json:"clip_rms"`
	PitchFMin       float64 `mapstructure:"pitch_fmin" yaml:"pitch_fmin" json:"pitch_fmin"`
	PitchFMax       float64 `mapstructure:"pitch_fmax" yaml:"pitch_fmax" json:"pitch_fmax"`
	PitchSampleRate float64 `mapstructure:"pitch_sample_rate" yaml:"pitch_sample_rate" json:"pitch_sample_rate"`
}

type ModelsConfig struct {
	Dir string   `mapstructure:"dir" yaml:"dir" json:"dir"`
	S3  S3Config `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// S3Config selects an S3 bucket for model artifacts. An empty Bucket means
// the local Dir is used.
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key" json:"-"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" json:"-"`
}

type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Dir           string `mapstructure:"dir" yaml:"dir" json:"dir"`
	RecordingsDir string `mapstructure:"recordings_dir" yaml:"recordings_dir" json:"recordings_dir"`
	SaveAudio     bool   `mapstructure:"save_audio" yaml:"save_audio" json:"save_audio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	fc := features.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Audio: AudioConfig{
			SampleRate: fc.SampleRate,
			Source:     SourcePortAudio,
			Buffer:     100 * time.Millisecond,
		},
		Features: FeaturesConfig{
			NMFCC:           fc.NMFCC,
			MinDuration:     fc.MinDuration,
			SilenceRMS:      fc.SilenceRMS,
			ClipRMS:         fc.ClipRMS,
			PitchFMin:       fc.PitchFMin,
			PitchFMax:       fc.PitchFMax,
			PitchSampleRate: fc.PitchSampleRate,
		},
		Models: ModelsConfig{Dir: "models"},
		History: HistoryConfig{
			Enabled:       true,
			Dir:           "data/history",
			RecordingsDir: "data/recordings",
			SaveAudio:     true,
		},
	}
}

// Options controls Load.
type Options struct {
	// File is an explicit config file. When empty, voicemood.yaml is looked
	// up in the working directory and its absence is not an error.
	File string
	// Flags maps config keys to command-line flags. Only flags that were
	// set on the command line override other sources.
	Flags map[string]*pflag.Flag
}

// Load reads the configuration and validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, f := range opts.Flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("config: bind flag %s: %w", f.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables can
// override keys absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"server.addr":                d.Server.Addr,
		"server.read_header_timeout": d.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    d.Server.ShutdownTimeout,
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
		"audio.sample_rate":          d.Audio.SampleRate,
		"audio.source":               d.Audio.Source,
		"audio.device_rate":          d.Audio.DeviceRate,
		"audio.buffer":               d.Audio.Buffer,
		"features.n_mfcc":            d.Features.NMFCC,
		"features.min_duration":      d.Features.MinDuration,
		"features.silence_rms":       d.Features.SilenceRMS,
		"features.clip_rms":          d.Features.ClipRMS,
		"features.pitch_fmin":        d.Features.PitchFMin,
		"features.pitch_fmax":        d.Features.PitchFMax,
		"features.pitch_sample_rate": d.Features.PitchSampleRate,
		"models.dir":                 d.Models.Dir,
		"models.s3.bucket":           d.Models.S3.Bucket,
		"models.s3.prefix":           d.Models.S3.Prefix,
		"models.s3.region":           d.Models.S3.Region,
		"models.s3.endpoint":         d.Models.S3.Endpoint,
		"models.s3.access_key":       d.Models.S3.AccessKey,
		"models.s3.secret_key":       d.Models.S3.SecretKey,
		"history.enabled":            d.History.Enabled,
		"history.dir":                d.History.Dir,
		"history.recordings_dir":     d.History.RecordingsDir,
		"history.save_audio":         d.History.SaveAudio,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q is not text or json", c.Log.Format)
	}
	switch c.Audio.Source {
	case SourcePortAudio, SourceStream:
	default:
		return fmt.Errorf("config: audio.source %q is not %s or %s", c.Audio.Source, SourcePortAudio, SourceStream)
	}
	if c.Audio.DeviceRate < 0 {
		return fmt.Errorf("config: audio.device_rate must not be negative")
	}
	if c.Audio.Buffer <= 0 {
		return fmt.Errorf("config: audio.buffer must be positive")
	}
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Models.Dir == "" && c.Models.S3.Bucket == "" {
		return errors.New("config: models.dir or models.s3.bucket is required")
	}
	if c.History.Enabled && c.History.Dir == "" {
		return errors.New("config: history.dir is required when history is enabled")
	}
	if c.History.Enabled && c.History.SaveAudio && c.History.RecordingsDir == "" {
		return errors.New("config: history.recordings_dir is required to save audio")
	}
	if err := c.FeatureConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// FeatureConfig returns the feature extractor configuration.
func (c *Config) FeatureConfig() features.Config {
	fc := features.DefaultConfig()
	fc.SampleRate = c.Audio.SampleRate
	fc.NMFCC = c.Features.NMFCC
	fc.MinDuration = c.Features.MinDuration
	fc.SilenceRMS = c.Features.SilenceRMS
	fc.ClipRMS = c.Features.ClipRMS
	fc.PitchFMin = c.Features.PitchFMin
	fc.PitchFMax = c.Features.PitchFMax
	fc.PitchSampleRate = c.Features.PitchSampleRate
	return fc
}

// DeviceRate returns the local capture rate.
func (c *Config) DeviceRate() int {
	if c.Audio.DeviceRate == 0 {
		return c.Audio.SampleRate
	}
	return c.Audio.DeviceRate
}
