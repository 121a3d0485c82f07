// Package config provides configuration loading and management for
// slicerecon. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"slicerecon/pkg/solver"
)

// Config represents the reconstruction configuration loaded from YAML.
type Config struct {
	// Regularization parameters of the Tikhonov solver.
	Regularization struct {
		// Type selects the regularization operator: "TK0" or "TK1".
		Type string `yaml:"type"`

		// Alpha is the regularization weight, non-negative.
		Alpha float64 `yaml:"alpha"`

		// IterMax bounds the LSQR iteration count.
		IterMax int `yaml:"iterMax"`
	} `yaml:"regularization"`

	// Solver holds the LSQR convergence tolerances.
	Solver struct {
		// ATol is the operator-relative tolerance.
		ATol float64 `yaml:"atol"`

		// BTol is the right-hand-side-relative tolerance.
		BTol float64 `yaml:"btol"`
	} `yaml:"solver"`

	// PSF controls the acquisition blur model.
	PSF struct {
		// AlphaCut is the Gaussian kernel cut-off in standard deviations.
		AlphaCut float64 `yaml:"alphaCut"`
	} `yaml:"psf"`

	// Processing controls the parallel evaluation of the operators.
	Processing struct {
		// NumWorkers bounds the per-slice parallelism.
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Regularization.Type = "TK1"
	cfg.Regularization.Alpha = 0.02
	cfg.Regularization.IterMax = 10

	cfg.Solver.ATol = 1e-8
	cfg.Solver.BTol = 1e-8

	cfg.PSF.AlphaCut = 3.0

	cfg.Processing.NumWorkers = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// SolverOptions converts the configuration into solver options, validating
// the regularization type.
func (c *Config) SolverOptions() (solver.Options, error) {
	regType, err := solver.ParseRegType(c.Regularization.Type)
	if err != nil {
		return solver.Options{}, err
	}
	return solver.Options{
		RegType:  regType,
		Alpha:    c.Regularization.Alpha,
		IterMax:  c.Regularization.IterMax,
		ATol:     c.Solver.ATol,
		BTol:     c.Solver.BTol,
		AlphaCut: c.PSF.AlphaCut,
		Workers:  c.Processing.NumWorkers,
	}, nil
}
