// ABOUTME: ttsplay configuration: defaults, YAML/TOML files and environment overrides
// ABOUTME: Converts the file view into a playback.Config for the controller
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/output"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

type PlaybackConfig struct {
	Backend        string `yaml:"backend" toml:"backend"`
	Device         string `yaml:"device" toml:"device"`
	Format         string `yaml:"format" toml:"format"`
	Channels       int    `yaml:"channels" toml:"channels"`
	Rate           int    `yaml:"rate" toml:"rate"`
	BufferMS       int    `yaml:"buffer_ms" toml:"buffer_ms"`
	Periods        int    `yaml:"periods" toml:"periods"`
	WaitTimeoutMS  int    `yaml:"wait_timeout_ms" toml:"wait_timeout_ms"`
	StrictSWParams bool   `yaml:"strict_sw_params" toml:"strict_sw_params"`
}

type ResumeConfig struct {
	IntervalMS  int `yaml:"interval_ms" toml:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	LogFile        string `yaml:"log_file" toml:"log_file"`
	PrometheusBind string `yaml:"prometheus_bind" toml:"prometheus_bind"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" toml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout" toml:"trace_stdout"`
}

type ToneConfig struct {
	Frequency  float64 `yaml:"frequency" toml:"frequency"`
	DurationMS int     `yaml:"duration_ms" toml:"duration_ms"`
	Count      int     `yaml:"count" toml:"count"`
}

type Config struct {
	Playback  PlaybackConfig  `yaml:"playback" toml:"playback"`
	Resume    ResumeConfig    `yaml:"resume" toml:"resume"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Tone      ToneConfig      `yaml:"tone" toml:"tone"`
}

// Default mirrors the speech player: the default device, S16_LE mono at
// 16 kHz, 500ms in 8 periods, and resume retries every second.
func Default() Config {
	return Config{
		Playback: PlaybackConfig{
			Backend:       string(output.BackendAuto),
			Device:        "default",
			Format:        audio.FormatS16LE.String(),
			Channels:      1,
			Rate:          16000,
			BufferMS:      500,
			Periods:       8,
			WaitTimeoutMS: 1000,
		},
		Resume: ResumeConfig{
			IntervalMS:  1000,
			MaxAttempts: 30,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFile:      "ttsplay.log",
			OTLPInsecure: true,
		},
		Tone: ToneConfig{
			Frequency:  440,
			DurationMS: 1000,
			Count:      1,
		},
	}
}

// Load reads path (YAML, or TOML for a .toml extension) over the defaults,
// applies TTSPLAY_* environment overrides and validates the result. An
// empty path loads defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, filepath.Ext(path), &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes data into cfg according to the file extension.
func Parse(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .yaml or .toml)", ext)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Playback.Backend, "TTSPLAY_BACKEND")
	overrideString(&cfg.Playback.Device, "TTSPLAY_DEVICE")
	overrideString(&cfg.Playback.Format, "TTSPLAY_FORMAT")
	overrideInt(&cfg.Playback.Channels, "TTSPLAY_CHANNELS")
	overrideInt(&cfg.Playback.Rate, "TTSPLAY_RATE")
	overrideInt(&cfg.Playback.BufferMS, "TTSPLAY_BUFFER_MS")
	overrideInt(&cfg.Playback.Periods, "TTSPLAY_PERIODS")
	overrideInt(&cfg.Playback.WaitTimeoutMS, "TTSPLAY_WAIT_TIMEOUT_MS")
	overrideBool(&cfg.Playback.StrictSWParams, "TTSPLAY_STRICT_SW_PARAMS")
	overrideInt(&cfg.Resume.IntervalMS, "TTSPLAY_RESUME_INTERVAL_MS")
	overrideInt(&cfg.Resume.MaxAttempts, "TTSPLAY_RESUME_MAX_ATTEMPTS")
	overrideString(&cfg.Telemetry.LogLevel, "TTSPLAY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "TTSPLAY_LOG_FILE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TTSPLAY_PROMETHEUS_BIND")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TTSPLAY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TTSPLAY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "TTSPLAY_TRACE_STDOUT")
	overrideFloat(&cfg.Tone.Frequency, "TTSPLAY_TONE_FREQUENCY")
	overrideInt(&cfg.Tone.DurationMS, "TTSPLAY_TONE_DURATION_MS")
	overrideInt(&cfg.Tone.Count, "TTSPLAY_TONE_COUNT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// Validate checks the values a file or the environment may have broken.
func (c Config) Validate() error {
	if _, err := output.ParseBackend(c.Playback.Backend); err != nil {
		return fmt.Errorf("playback.backend: %w", err)
	}
	if c.Playback.Device == "" {
		return errors.New("playback.device must not be empty")
	}
	if _, err := audio.ParseSampleFormat(c.Playback.Format); err != nil {
		return fmt.Errorf("playback.format: %w", err)
	}
	if c.Playback.Channels <= 0 {
		return errors.New("playback.channels must be positive")
	}
	if c.Playback.Rate <= 0 {
		return errors.New("playback.rate must be positive")
	}
	if c.Playback.BufferMS <= 0 {
		return errors.New("playback.buffer_ms must be positive")
	}
	if c.Playback.Periods <= 0 {
		return errors.New("playback.periods must be positive")
	}
	if c.Playback.WaitTimeoutMS <= 0 {
		return errors.New("playback.wait_timeout_ms must be positive")
	}
	if c.Resume.IntervalMS < 0 {
		return errors.New("resume.interval_ms must be >= 0")
	}
	if c.Resume.MaxAttempts < 0 {
		return errors.New("resume.max_attempts must be >= 0")
	}
	if _, err := ParseLevel(c.Telemetry.LogLevel); err != nil {
		return fmt.Errorf("telemetry.log_level: %w", err)
	}
	if c.Tone.Frequency < 0 || c.Tone.DurationMS < 0 || c.Tone.Count < 0 {
		return errors.New("tone settings must not be negative")
	}
	return nil
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Format returns the playback stream format.
func (c Config) Format() audio.Format {
	encoding, _ := audio.ParseSampleFormat(c.Playback.Format)
	return audio.Format{
		Encoding:   encoding,
		SampleRate: c.Playback.Rate,
		Channels:   c.Playback.Channels,
	}
}

// PlaybackConfig builds the controller request.
func (c Config) PlaybackConfig(logger *slog.Logger, meter metric.Meter) playback.Config {
	format := c.Format()
	return playback.Config{
		Device:      c.Playback.Device,
		Format:      format.Encoding,
		Channels:    format.Channels,
		Rate:        format.SampleRate,
		BufferTime:  time.Duration(c.Playback.BufferMS) * time.Millisecond,
		MinPeriods:  c.Playback.Periods,
		WaitTimeout: time.Duration(c.Playback.WaitTimeoutMS) * time.Millisecond,
		Resume: playback.ResumePolicy{
			Interval:    time.Duration(c.Resume.IntervalMS) * time.Millisecond,
			MaxAttempts: c.Resume.MaxAttempts,
		},
		StrictSoftwareParams: c.Playback.StrictSWParams,
		Logger:               logger,
		Meter:                meter,
	}
}
