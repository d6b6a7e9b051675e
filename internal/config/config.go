// Package config loads tailing session settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/tail"
)

// Duration is a time.Duration read from YAML either as a Go duration string
// ("200ms", "1m") or as a bare integer number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if ms, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config holds every tunable of a session.
type Config struct {
	Region          string   `yaml:"region"`
	Profile         string   `yaml:"profile"`
	Concurrency     int      `yaml:"concurrency"`
	RetryTimeout    Duration `yaml:"retry_timeout"`
	MaxRetries      int      `yaml:"max_retries"`
	PollingInterval Duration `yaml:"polling_interval"`
	TopN            int      `yaml:"top_n"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	LogLevel        string   `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Concurrency:     dispatch.DefaultConcurrency,
		RetryTimeout:    Duration(dispatch.DefaultRetryTimeout),
		PollingInterval: Duration(tail.DefaultPollingInterval),
		TopN:            tail.DefaultTopN,
		LogLevel:        "info",
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.RetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("retry_timeout must be positive, got %s", time.Duration(c.RetryTimeout)))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.PollingInterval <= 0 {
		errs = append(errs, fmt.Errorf("polling_interval must be positive, got %s", time.Duration(c.PollingInterval)))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must not be negative, got %s", time.Duration(c.IdleTimeout)))
	}
	return errors.Join(errs...)
}

// DispatchOptions returns the dispatcher settings.
func (c Config) DispatchOptions() dispatch.Options {
	return dispatch.Options{
		Concurrency:  c.Concurrency,
		RetryTimeout: time.Duration(c.RetryTimeout),
		MaxRetries:   c.MaxRetries,
	}
}

// TailOptions returns the discovery and polling settings.
func (c Config) TailOptions() tail.Options {
	return tail.Options{
		PollingInterval: time.Duration(c.PollingInterval),
		IdleTimeout:     time.Duration(c.IdleTimeout),
		TopN:            c.TopN,
	}
}
