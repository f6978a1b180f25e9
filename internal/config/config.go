// Package config loads the workledger server configuration: a YAML file, then
// environment overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/logger"
)

// Config is the root of the configuration file.
type Config struct {
	Listen   string        `yaml:"listen"`
	Strategy string        `yaml:"strategy"`
	ReadOnly bool          `yaml:"readOnly"`
	Log      Log           `yaml:"log"`
	Retry    Retry         `yaml:"retry"`
	Stores   []Store       `yaml:"stores"`
	Shutdown time.Duration `yaml:"shutdownTimeout"`
}

type Log struct {
	Level   string `yaml:"level"`
	Path    string `yaml:"path"`
	Console bool   `yaml:"console"`

	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

type Retry struct {
	MaxRetries   int           `yaml:"maxRetries"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

// Store configures one candidate store. Options carries driver specific settings
// such as the SurrealDB namespace or the Redis key prefix.
type Store struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"`
	Target   string `yaml:"target"`
	Priority int    `yaml:"priority"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	MaxFailuresBeforeOffline   int `yaml:"maxFailuresBeforeOffline"`
	SuccessesRequiredToRecover int `yaml:"successesRequiredToRecover"`

	ProbeInterval    time.Duration `yaml:"probeInterval"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	Options map[string]string `yaml:"options"`
}

// IsEnabled reports the effective enabled flag.
func (s Store) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Default returns a configuration serving from the stub alone.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Strategy: string(backend.StrategyPriority),
		Shutdown: 5 * time.Second,
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Retry: Retry{
			MaxRetries:   constants.DefaultMaxRetries,
			InitialDelay: constants.DefaultBaseDelay,
			MaxDelay:     constants.DefaultMaxDelay,
			Multiplier:   2,
		},
		Stores: []Store{{
			ID:       "stub",
			Name:     "Degraded stub",
			Driver:   constants.DriverStub,
			Priority: constants.DefaultStubPriority,
		}},
	}
}

// Load reads path (skipped when empty), applies the process environment and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected. A file that lists
// stores replaces the default store list.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	cfg.Stores = nil
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Stores) == 0 {
		cfg.Stores = Default().Stores
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
//
//	WORKLEDGER_LISTEN, WORKLEDGER_LOG_LEVEL, WORKLEDGER_STRATEGY, WORKLEDGER_READ_ONLY
//	WORKLEDGER_STORE_<ID>_TARGET    target of the store with that id
//	POSTGRES_DSN                    target of every postgres store without its own override
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("WORKLEDGER_LISTEN"); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup("WORKLEDGER_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("WORKLEDGER_STRATEGY"); ok && v != "" {
		c.Strategy = v
	}
	if v, ok := lookup("WORKLEDGER_READ_ONLY"); ok && v != "" {
		ro, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WORKLEDGER_READ_ONLY: %w", err)
		}
		c.ReadOnly = ro
	}

	dsn, hasDSN := lookup("POSTGRES_DSN")
	for i := range c.Stores {
		s := &c.Stores[i]
		if v, ok := lookup(StoreTargetEnv(s.ID)); ok && v != "" {
			s.Target = v
			continue
		}
		if hasDSN && dsn != "" && s.Driver == constants.DriverPostgres {
			s.Target = dsn
		}
	}
	return nil
}

// StoreTargetEnv returns the variable overriding the target of store id.
func StoreTargetEnv(id string) string {
	id = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id))
	return "WORKLEDGER_STORE_" + id + "_TARGET"
}

var drivers = map[string]bool{
	constants.DriverPostgres:  true,
	constants.DriverSQLite:    true,
	constants.DriverSurrealDB: true,
	constants.DriverRedis:     true,
	constants.DriverStub:      true,
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if _, err := backend.ParseStrategy(c.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.maxRetries must not be negative"))
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be at least 1"))
	}
	if len(c.Stores) == 0 {
		errs = append(errs, errors.New("no stores configured"))
	}

	seen := make(map[string]bool, len(c.Stores))
	stubs := 0
	for i, s := range c.Stores {
		where := fmt.Sprintf("stores[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", where, s.ID))
		}
		seen[s.ID] = true

		if !drivers[s.Driver] {
			errs = append(errs, fmt.Errorf("%s: unknown driver %q", where, s.Driver))
		}
		if s.Driver == constants.DriverStub {
			stubs++
		} else if s.Target == "" {
			errs = append(errs, fmt.Errorf("%s: target is required for driver %q", where, s.Driver))
		}
		if s.MaxFailuresBeforeOffline < 0 || s.SuccessesRequiredToRecover < 0 {
			errs = append(errs, fmt.Errorf("%s: thresholds must not be negative", where))
		}
		if s.ProbeInterval < 0 || s.ProbeTimeout < 0 || s.OperationTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: durations must not be negative", where))
		}
	}
	if stubs > 1 {
		errs = append(errs, fmt.Errorf("at most one stub store is allowed, got %d", stubs))
	}
	return errors.Join(errs...)
}

// Descriptors converts the store list for backend.New.
func (c *Config) Descriptors() []backend.Descriptor {
	out := make([]backend.Descriptor, 0, len(c.Stores))
	for _, s := range c.Stores {
		d := backend.Descriptor{
			ID:                         s.ID,
			DisplayName:                s.Name,
			Kind:                       backend.KindReal,
			Target:                     s.Target,
			Priority:                   s.Priority,
			MaxFailuresBeforeOffline:   s.MaxFailuresBeforeOffline,
			SuccessesRequiredToRecover: s.SuccessesRequiredToRecover,
			ProbeInterval:              s.ProbeInterval,
			ProbeTimeout:               s.ProbeTimeout,
			OperationTimeout:           s.OperationTimeout,
			Enabled:                    s.IsEnabled(),
		}
		if s.Driver == constants.DriverStub {
			d.Kind = backend.KindDegradedStub
		}
		out = append(out, d)
	}
	return out
}

// Backoff converts the retry section.
func (c *Config) Backoff() backend.Backoff {
	b := backend.DefaultBackoff()
	b.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialDelay > 0 {
		b.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		b.MaxDelay = c.Retry.MaxDelay
	}
	if c.Retry.Multiplier >= 1 {
		b.Multiplier = c.Retry.Multiplier
	}
	b.JitterFactor = c.Retry.Jitter
	return b
}

// Logger builds the zerolog logger described by the log section.
func (c *Config) Logger(w io.Writer) (*logger.LogData, error) {
	return logger.New().
		FromBuffer(w).
		FromPath(c.Log.Path).
		WithLevel(c.Log.Level).
		Console(c.Log.Console).
		WithRotation(logger.Rotation{
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		}).
		Make()
}
