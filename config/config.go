// Package config loads parley settings from .parley.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tunables for the event pipeline and replay tooling.
type Config struct {
	DispatchTools  []string `yaml:"dispatch_tools"`
	FlushCadenceMs int      `yaml:"flush_cadence_ms"`
	QueueHighWater int      `yaml:"queue_high_water"`
	ReplaySpeed    float64  `yaml:"replay_speed"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		FlushCadenceMs: 16,
		QueueHighWater: 256,
		ReplaySpeed:    1,
	}
}

// Load reads .parley.yaml from dir. Returns defaults if the file
// doesn't exist; missing keys keep their default values.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".parley.yaml")

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.FlushCadenceMs <= 0 {
		return fmt.Errorf("flush_cadence_ms must be positive, got %d", c.FlushCadenceMs)
	}
	if c.QueueHighWater <= 0 {
		return fmt.Errorf("queue_high_water must be positive, got %d", c.QueueHighWater)
	}
	if c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must not be negative, got %g", c.ReplaySpeed)
	}
	return nil
}

// FlushCadence returns the cadence as a duration.
func (c *Config) FlushCadence() time.Duration {
	return time.Duration(c.FlushCadenceMs) * time.Millisecond
}
