// Package config provides configuration loading and management for
// rodentprep. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"rodentprep/pkg/confound"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds the parallel per-frame resampling calls
		NumCores int `yaml:"numCores"`

		// UseFieldwarp applies the susceptibility-distortion field in
		// every frame's transform chain
		UseFieldwarp bool `yaml:"useFieldwarp"`
	} `yaml:"processing"`

	// aCompCor component-selection parameters
	ACompCor struct {
		// Method is "variance_threshold" or "fixed_count"
		Method string `yaml:"method"`

		// VarianceThreshold is the cumulative explained-variance cutoff
		VarianceThreshold float64 `yaml:"varianceThreshold"`

		// FixedCount is the component count for the fixed_count method
		FixedCount int `yaml:"fixedCount"`
	} `yaml:"aCompCor"`

	// External tool executables
	Tools struct {
		// MotionCorr is the motion-correction solver executable
		MotionCorr string `yaml:"motionCorr"`

		// ApplyTransforms is the resampling executable
		ApplyTransforms string `yaml:"applyTransforms"`

		// Interpolation is the resampling kernel
		Interpolation string `yaml:"interpolation"`
	} `yaml:"tools"`

	// Output parameters
	Output struct {
		// WriteNpy also writes the confound matrix as a .npy array
		WriteNpy bool `yaml:"writeNpy"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.UseFieldwarp = false

	policy := confound.DefaultCompCorPolicy()
	cfg.ACompCor.Method = policy.Method
	cfg.ACompCor.VarianceThreshold = policy.VarianceThreshold
	cfg.ACompCor.FixedCount = policy.FixedCount

	cfg.Tools.MotionCorr = "antsMotionCorr"
	cfg.Tools.ApplyTransforms = "antsApplyTransforms"
	cfg.Tools.Interpolation = "LanczosWindowedSinc"

	cfg.Output.WriteNpy = false
	cfg.Output.Verbose = true

	return cfg
}

// CompCorPolicy returns the configured component-selection policy.
func (c *Config) CompCorPolicy() confound.CompCorPolicy {
	return confound.CompCorPolicy{
		Method:            c.ACompCor.Method,
		VarianceThreshold: c.ACompCor.VarianceThreshold,
		FixedCount:        c.ACompCor.FixedCount,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
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

// SaveConfig saves the configuration to a YAML file
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
