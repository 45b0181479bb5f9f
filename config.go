package ivbridge

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration read by the ivbridge command and by
// hosts that want file-driven setup.
//
//	backend: linked
//	max_objects: 4096
//	log_level: info
//	interpreters: 4
//	iterations: 1000
type Config struct {
	// Backend is selected when no backend is active yet.
	Backend BackendID `yaml:"backend"`

	// MaxObjects bounds pinned objects per interpreter; 0 is unlimited.
	MaxObjects int `yaml:"max_objects"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Interpreters is the number of parallel interpreters used by bench.
	Interpreters int `yaml:"interpreters"`

	// Iterations is the number of round trips per interpreter in bench.
	Iterations int `yaml:"iterations"`
}

// LoadConfig loads and parses a YAML config file from the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML data into a Config with defaults applied.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Interpreters == 0 {
		c.Interpreters = 4
	}
	if c.Iterations == 0 {
		c.Iterations = 1000
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.MaxObjects < 0 {
		return fmt.Errorf("config: max_objects must not be negative, got %d", c.MaxObjects)
	}
	if c.Interpreters < 1 {
		return fmt.Errorf("config: interpreters must be at least 1, got %d", c.Interpreters)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("config: iterations must be at least 1, got %d", c.Iterations)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// InterpreterOptions returns options for an interpreter named name.
func (c *Config) InterpreterOptions(name string, logger *slog.Logger) InterpreterOptions {
	return InterpreterOptions{Name: name, MaxObjects: c.MaxObjects, Logger: logger}
}
