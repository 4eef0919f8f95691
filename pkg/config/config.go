// Package config provides configuration loading and management for octrecon.
// It handles loading configuration from YAML or TOML files and provides
// default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"octrecon/pkg/reconstruction"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use per frame
		NumCores int `yaml:"numCores" toml:"numCores"`

		// ALineSize is the number of samples per A-line
		ALineSize int `yaml:"aLineSize" toml:"aLineSize"`

		// BufferCapacity is the number of frame slots between producer and worker
		BufferCapacity int `yaml:"bufferCapacity" toml:"bufferCapacity"`
	} `yaml:"processing" toml:"processing"`

	// Recon holds the reconstruction parameters
	Recon reconstruction.Params `yaml:"recon" toml:"recon"`

	Calibration struct {
		// Dir contains the background and phase calibration files
		Dir string `yaml:"dir" toml:"dir"`

		// BackgroundFrames is the number of frames averaged for a background
		BackgroundFrames int `yaml:"backgroundFrames" toml:"backgroundFrames"`
	} `yaml:"calibration" toml:"calibration"`

	Replay struct {
		// IntervalMs is the minimum time between replayed frames
		IntervalMs int `yaml:"intervalMs" toml:"intervalMs"`

		Loop bool `yaml:"loop" toml:"loop"`
	} `yaml:"replay" toml:"replay"`

	Export struct {
		// SaveImages enables TIFF export of every reconstructed frame
		SaveImages bool `yaml:"saveImages" toml:"saveImages"`

		Dir string `yaml:"dir" toml:"dir"`

		// Catalog is the sqlite database recording exports; empty disables it
		Catalog string `yaml:"catalog" toml:"catalog"`
	} `yaml:"export" toml:"export"`

	Display struct {
		SnapshotDir string `yaml:"snapshotDir" toml:"snapshotDir"`

		// SnapshotEvery saves every Nth frame; 0 disables autosave
		SnapshotEvery int `yaml:"snapshotEvery" toml:"snapshotEvery"`
	} `yaml:"display" toml:"display"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" toml:"verbose"`

		LogLevel string `yaml:"logLevel" toml:"logLevel"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.ALineSize = 2048 * 3
	cfg.Processing.BufferCapacity = 8

	cfg.Recon = reconstruction.DefaultParams()

	cfg.Calibration.Dir = "calibration"
	cfg.Calibration.BackgroundFrames = 10

	cfg.Export.SaveImages = false
	cfg.Export.Dir = "export"
	cfg.Export.Catalog = ""

	cfg.Display.SnapshotDir = "snapshots"
	cfg.Display.SnapshotEvery = 0

	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// ReplayInterval returns the replay interval as a duration.
func (c *Config) ReplayInterval() time.Duration {
	return time.Duration(c.Replay.IntervalMs) * time.Millisecond
}

// Validate checks value ranges across all sections.
func (c *Config) Validate() error {
	if err := c.Recon.Validate(); err != nil {
		return fmt.Errorf("%w: recon: %w", ErrInvalid, err)
	}
	switch {
	case c.Processing.NumCores < 0:
		return fmt.Errorf("%w: numCores %d is negative", ErrInvalid, c.Processing.NumCores)
	case c.Processing.ALineSize < 2:
		return fmt.Errorf("%w: aLineSize %d is too small", ErrInvalid, c.Processing.ALineSize)
	case c.Processing.BufferCapacity < 1:
		return fmt.Errorf("%w: bufferCapacity must be at least 1", ErrInvalid)
	case c.Calibration.BackgroundFrames < 1:
		return fmt.Errorf("%w: backgroundFrames must be at least 1", ErrInvalid)
	case c.Replay.IntervalMs < 0:
		return fmt.Errorf("%w: intervalMs %d is negative", ErrInvalid, c.Replay.IntervalMs)
	case c.Export.SaveImages && c.Export.Dir == "":
		return fmt.Errorf("%w: export enabled without a directory", ErrInvalid)
	case c.Display.SnapshotEvery < 0:
		return fmt.Errorf("%w: snapshotEvery %d is negative", ErrInvalid, c.Display.SnapshotEvery)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML file, or TOML when the path
// ends in .toml. If the file doesn't exist, it returns the default
// configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration in the format matching the extension
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(configPath) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
