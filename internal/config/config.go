package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/watch"
	"github.com/oshokin/anchor-watch/internal/logger"
)

// Config holds every setting of the anchor watch binaries.
type Config struct {
	// ServerAddress is the gRPC address of anchor-server.
	ServerAddress string `yaml:"server_addr"`
	// MetricsAddress serves Prometheus metrics over HTTP; empty disables it.
	MetricsAddress string `yaml:"metrics_addr,omitempty"`
	// Timeout bounds individual RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is console or json.
	LogFormat string `yaml:"log_format"`
	// Watch tunes the state machine and the sample filter.
	Watch WatchConfig `yaml:"watch"`
	// Positioning configures the fix feed of anchor-server.
	Positioning PositioningConfig `yaml:"positioning"`
	// Alert configures the local alarm command.
	Alert AlertConfig `yaml:"alert"`
}

// WatchConfig tunes hysteresis and filtering.
type WatchConfig struct {
	// SafeRadiusMeters is the radius in effect at startup.
	SafeRadiusMeters float64 `yaml:"safe_radius_m"`
	// MarginFactor scales fix accuracy into the alarm margin.
	MarginFactor float64 `yaml:"margin_factor"`
	// MinMarginMeters is the smallest alarm margin.
	MinMarginMeters float64 `yaml:"min_margin_m"`
	// MaxAccuracyMeters rejects worse fixes outright; 0 disables.
	MaxAccuracyMeters float64 `yaml:"max_accuracy_m"`
	// AssumedAccuracyMeters replaces an unknown accuracy.
	AssumedAccuracyMeters float64 `yaml:"assumed_accuracy_m"`
	// MaxSpeedMetersPerSecond rejects implausible jumps; 0 disables.
	MaxSpeedMetersPerSecond float64 `yaml:"max_speed_mps"`
}

// PositioningConfig configures where fixes come from.
type PositioningConfig struct {
	// TrackFile is a YAML track replayed as the fix feed; empty means fixes
	// arrive only through the SubmitFix RPC.
	TrackFile string `yaml:"track_file,omitempty"`
	// ReplayInterval is the delay between replayed fixes.
	ReplayInterval time.Duration `yaml:"replay_interval"`
	// StaleAfter is how long the feed may stay silent before it is reported stale.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// AlertConfig configures the command run while alarmed.
type AlertConfig struct {
	// Command and its arguments; empty disables local alerts.
	Command []string `yaml:"command,omitempty,flow"`
	// RepeatEvery re-runs the command while still alarmed; 0 runs it once.
	RepeatEvery time.Duration `yaml:"repeat_every"`
}

const (
	// DefaultConfigFilename is the default settings file.
	DefaultConfigFilename = "anchor-watch-settings.yaml"

	// DefaultServerAddress is used when server_addr is omitted.
	DefaultServerAddress = "127.0.0.1:50061"

	// DefaultTimeout is the default duration for RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultReplayInterval paces track replay.
	DefaultReplayInterval = time.Second

	// DefaultStaleAfter is the default freshness timeout of the fix feed.
	DefaultStaleAfter = 30 * time.Second

	// DefaultFilePermissions is the permission of saved settings.
	DefaultFilePermissions = 0o600
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns defaults when the file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save validates cfg and writes it to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults in place and checks every field.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if _, err := net.ResolveTCPAddr("tcp", cfg.ServerAddress); err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}

	if cfg.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	if _, ok := logger.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	if _, ok := logger.ParseFormat(cfg.LogFormat); !ok {
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}

	if err := cfg.Watch.HysteresisConfig().Validate(); err != nil {
		return fmt.Errorf("invalid watch settings: %w", err)
	}

	w := cfg.Watch
	if w.MaxAccuracyMeters < 0 || w.AssumedAccuracyMeters < 0 || w.MaxSpeedMetersPerSecond < 0 {
		return errors.New("invalid watch settings: filter limits must not be negative")
	}

	if cfg.Alert.RepeatEvery < 0 {
		return errors.New("invalid alert settings: repeat_every must not be negative")
	}

	return nil
}

// HysteresisConfig converts the settings into state machine configuration.
func (w WatchConfig) HysteresisConfig() watch.Config {
	return watch.Config{
		SafeRadiusMeters: w.SafeRadiusMeters,
		MarginFactor:     w.MarginFactor,
		MinMarginMeters:  w.MinMarginMeters,
	}
}

// FilterConfig converts the settings into sample filter configuration.
func (w WatchConfig) FilterConfig() filter.Config {
	return filter.Config{
		MaxAccuracyMeters:       w.MaxAccuracyMeters,
		MaxSpeedMetersPerSecond: w.MaxSpeedMetersPerSecond,
		AssumedAccuracyMeters:   w.AssumedAccuracyMeters,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = DefaultServerAddress
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = string(logger.FormatConsole)
	}

	if cfg.Watch.SafeRadiusMeters == 0 {
		cfg.Watch.SafeRadiusMeters = watch.DefaultSafeRadiusMeters
	}

	if cfg.Watch.MarginFactor == 0 {
		cfg.Watch.MarginFactor = watch.DefaultMarginFactor
	}

	if cfg.Watch.MinMarginMeters == 0 {
		cfg.Watch.MinMarginMeters = watch.DefaultMinMarginMeters
	}

	if cfg.Watch.AssumedAccuracyMeters == 0 {
		cfg.Watch.AssumedAccuracyMeters = filter.DefaultAssumedAccuracyMeters
	}

	if cfg.Positioning.ReplayInterval <= 0 {
		cfg.Positioning.ReplayInterval = DefaultReplayInterval
	}

	if cfg.Positioning.StaleAfter <= 0 {
		cfg.Positioning.StaleAfter = DefaultStaleAfter
	}
}
