// Package config loads the nlgFileTools configuration file.
//
// The file is YAML and is selected with --config. Every field has a default,
// so running without a file is the same as running with an empty one.
// Command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is the tool configuration.
type Config struct {
	// Workers bounds the goroutines compressing or decompressing blocks.
	// Zero uses one per CPU.
	Workers int `yaml:"workers"`

	// CompressionLevel is the zlib level used on save.
	// Values: -1 (default), 6-9. The game only accepts 78 9C and 78 DA headers.
	CompressionLevel int `yaml:"compression_level"`

	// DecodeZstd decodes compressed blocks that hold a zstd frame instead of
	// skipping them as unknown compression.
	DecodeZstd bool `yaml:"decode_zstd"`

	// HashNames lists files of known names, one per line, used to print
	// hashes as names. ${VAR} references are expanded.
	HashNames []string `yaml:"hash_names"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level: debug, info, warn or error.
	Level string `yaml:"level"`

	// Format: text or json.
	Format string `yaml:"format"`
}

var (
	compressionLevels = []int{-1, 6, 7, 8, 9}
	logLevels         = []string{"debug", "info", "warn", "error"}
	logFormats        = []string{"text", "json"}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:          0,
		CompressionLevel: -1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile loads configuration from path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for i, p := range cfg.HashNames {
		cfg.HashNames[i] = os.ExpandEnv(p)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if !slices.Contains(compressionLevels, c.CompressionLevel) {
		errs = append(errs, fmt.Errorf("compression_level must be one of: %v", compressionLevels))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level name to a slog level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger returns a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
