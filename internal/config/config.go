// Package config loads the qsp-cli configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
)

// Config represents the complete qsp-cli configuration
type Config struct {
	Sharing SharingConfig `yaml:"sharing"`
	Stego   StegoConfig   `yaml:"stego"`
	Signing SigningConfig `yaml:"signing"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Paths   PathsConfig   `yaml:"paths"`
}

// SharingConfig controls the (t, n) threshold split
type SharingConfig struct {
	Threshold          int `yaml:"threshold"`
	Shares             int `yaml:"shares"`
	ScrambleIterations int `yaml:"scramble_iterations"`
}

// StegoConfig controls the DCT codec
type StegoConfig struct {
	Strength   int `yaml:"strength"`
	CoeffIndex int `yaml:"coeff_index"`
}

// SigningConfig controls the lattice signature rejection loops
type SigningConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// PathsConfig contains the working directories
type PathsConfig struct {
	Keys     string `yaml:"keys"`
	Covers   string `yaml:"covers"`
	Assets   string `yaml:"assets"`
	Restored string `yaml:"restored"`
}

// Default returns the configuration matching core.DefaultParams.
func Default() *Config {
	p := core.DefaultParams
	return &Config{
		Sharing: SharingConfig{
			Threshold:          3,
			Shares:             5,
			ScrambleIterations: p.Sharing.ScrambleIterations,
		},
		Stego: StegoConfig{
			Strength:   p.Stego.Strength,
			CoeffIndex: p.Stego.CoeffIndex,
		},
		Signing: SigningConfig{
			MaxAttempts: p.Lattice.MaxSignAttempts,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Paths: PathsConfig{
			Keys:     filepath.Join("data", "keys"),
			Covers:   filepath.Join("data", "covers"),
			Assets:   filepath.Join("data", "stego_images"),
			Restored: filepath.Join("data", "restored"),
		},
	}
}

// Load reads configuration from a YAML file over the defaults, applies
// environment variable overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies QSP_* environment variable overrides
func applyEnvOverrides(cfg *Config) {
	envInt("QSP_THRESHOLD", &cfg.Sharing.Threshold)
	envInt("QSP_SHARES", &cfg.Sharing.Shares)
	envInt("QSP_SCRAMBLE_ITERATIONS", &cfg.Sharing.ScrambleIterations)
	envInt("QSP_STRENGTH", &cfg.Stego.Strength)
	envInt("QSP_COEFF_INDEX", &cfg.Stego.CoeffIndex)
	envInt("QSP_MAX_SIGN_ATTEMPTS", &cfg.Signing.MaxAttempts)

	if level := os.Getenv("QSP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("QSP_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if textfile := os.Getenv("QSP_METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}

	// Paths
	if dataDir := os.Getenv("QSP_DATA_DIR"); dataDir != "" {
		cfg.Paths.Keys = filepath.Join(dataDir, "keys")
		cfg.Paths.Covers = filepath.Join(dataDir, "covers")
		cfg.Paths.Assets = filepath.Join(dataDir, "stego_images")
		cfg.Paths.Restored = filepath.Join(dataDir, "restored")
	}
	if keys := os.Getenv("QSP_KEYS_DIR"); keys != "" {
		cfg.Paths.Keys = keys
	}
}

func envInt(name string, dst *int) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %d: %v", name, raw, *dst, err)
		return
	}
	*dst = v
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Sharing.Threshold < 1 {
		return fmt.Errorf("threshold must be positive, got %d", c.Sharing.Threshold)
	}
	if c.Sharing.Shares <= c.Sharing.Threshold {
		return fmt.Errorf("shares (%d) must exceed threshold (%d)", c.Sharing.Shares, c.Sharing.Threshold)
	}
	if c.Sharing.Shares > 255 {
		return fmt.Errorf("at most 255 shares are supported, got %d", c.Sharing.Shares)
	}
	if c.Sharing.ScrambleIterations < 0 {
		return fmt.Errorf("scramble iterations cannot be negative")
	}
	if c.Stego.Strength < core.MinStrength || c.Stego.Strength > core.MaxStrength {
		return fmt.Errorf("stego strength must be in [%d, %d], got %d", core.MinStrength, core.MaxStrength, c.Stego.Strength)
	}
	if c.Stego.CoeffIndex < 1 || c.Stego.CoeffIndex > 63 {
		return fmt.Errorf("coefficient index must be in [1, 63], got %d", c.Stego.CoeffIndex)
	}
	if c.Signing.MaxAttempts < 1 {
		return fmt.Errorf("max sign attempts must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Paths.Keys == "" {
		return fmt.Errorf("keys path must be specified")
	}
	return nil
}

// Apply overlays the configuration onto a parameter set and validates it.
func (c *Config) Apply(p qsp.Params) (qsp.Params, error) {
	p.Sharing.ScrambleIterations = c.Sharing.ScrambleIterations
	p.Stego.Strength = c.Stego.Strength
	p.Stego.CoeffIndex = c.Stego.CoeffIndex
	p.Lattice.MaxSignAttempts = c.Signing.MaxAttempts
	if err := core.ValidateParams(p); err != nil {
		return qsp.Params{}, err
	}
	return p, nil
}

// Write saves the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
