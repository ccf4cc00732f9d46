// Package config loads layered configuration: built-in defaults, an optional
// YAML file and SURGE_RULESET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/fetcher"
)

// EnvPrefix prefixes environment overrides. Levels are separated by a double
// underscore, e.g. SURGE_RULESET_FETCH__WORKERS=4.
const EnvPrefix = "SURGE_RULESET_"

// Config is the full application configuration.
type Config struct {
	Output  OutputConfig   `koanf:"output"`
	Fetch   FetchConfig    `koanf:"fetch"`
	Catalog catalog.Config `koanf:"catalog"`
	Custom  catalog.Config `koanf:"custom"`
	Metrics MetricsConfig  `koanf:"metrics"`
	Serve   ServeConfig    `koanf:"serve"`
}

// OutputConfig locates the artifact tree.
type OutputConfig struct {
	Dir string `koanf:"dir"`
}

// FetchConfig bounds source retrieval.
type FetchConfig struct {
	Workers   int           `koanf:"workers"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
	MaxBytes  int64         `koanf:"max_bytes"`
}

// MetricsConfig controls metrics export after a run.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// ServeConfig controls the artifact server.
type ServeConfig struct {
	Addr    string        `koanf:"addr"`
	Refresh time.Duration `koanf:"refresh"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"output.dir":       "rules",
		"fetch.workers":    10,
		"fetch.timeout":    fetcher.DefaultTimeout,
		"fetch.user_agent": fetcher.DefaultUserAgent,
		"fetch.max_bytes":  int64(fetcher.DefaultMaxBytes),
		"catalog.type":     string(catalog.TypeStatic),
		"custom.type":      string(catalog.TypeStatic),
		"serve.addr":       ":8080",
		"serve.refresh":    30 * time.Minute,
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return &cfg, nil
}

// envKey maps SURGE_RULESET_FETCH__USER_AGENT to fetch.user_agent.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if c.Fetch.Workers < 1 {
		errs = append(errs, fmt.Errorf("fetch.workers must be at least 1, got %d", c.Fetch.Workers))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if err := c.Catalog.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := c.Custom.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("custom: %w", err))
	}
	if c.Serve.Refresh < 0 {
		errs = append(errs, fmt.Errorf("serve.refresh must not be negative, got %s", c.Serve.Refresh))
	}
	return errors.Join(errs...)
}

// FetcherOptions converts the fetch section for the fetcher package.
func (c *Config) FetcherOptions() fetcher.Options {
	return fetcher.Options{
		Timeout:   c.Fetch.Timeout,
		UserAgent: c.Fetch.UserAgent,
		MaxBytes:  c.Fetch.MaxBytes,
	}
}
