package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "RIBASIM_"
	configEnvVar = "RIBASIM_CONFIG_PATH"
)

// Loader assembles a Config from layered sources: built-in defaults, an
// optional TOML document, then environment overrides.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader builds a Loader with the default search paths.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"ribasim.toml",
			"config/ribasim.toml",
			"/etc/ribasim/ribasim.toml",
		},
		envPrefix: envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoaderOption customizes a Loader before Load is called.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the TOML search path list.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.configPaths = paths }
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// Load resolves the configuration with priority, lowest to highest:
// built-in defaults, the TOML document, then environment variables.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPath loads the configuration using explicitPath as the single
// TOML document location, bypassing the search-path list. This is what
// the CLI uses for its single positional argument.
func (l *Loader) LoadPath(explicitPath string) (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.k.Load(file.Provider(explicitPath), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", explicitPath, err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		"simulation.starttime":   "",
		"simulation.endtime":     "",
		"simulation.input_path":   "",
		"simulation.output_dir":   "results",
		"simulation.output_format": "csv",
		"simulation.save_interval": 86400.0,
		"simulation.crash_backup": true,

		"solver.algorithm":             "dopri45",
		"solver.saturated_rtol":        1e-3,
		"solver.abstol":                1e-6,
		"solver.reltol":                1e-5,
		"solver.maxtimestep":           86400.0,
		"solver.water_balance_abstol":  1e-4,
		"solver.water_balance_reltol":  1e-5,
		"solver.pid_derivative_floor":  false,

		"allocation.enabled":          false,
		"allocation.timestep_seconds": 86400.0,
		"allocation.solver_timeout":   "30s",
		"allocation.max_concurrency":  4,

		"interpolation.default_method":        "linear",
		"interpolation.default_extrapolation": "constant",

		"logging.level":       "info",
		"logging.format":      "json",
		"logging.output":      "stdout",
		"logging.max_size":    100,
		"logging.max_backups": 3,
		"logging.max_age":     7,
		"logging.compress":    true,

		"metrics.enabled":   false,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "ribasim",
		"metrics.subsystem": "",
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), toml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), toml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, l.envPrefix)),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads the configuration from the default search paths or
// panics. Intended for tests and quick tooling, not the CLI entrypoint.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load loads the configuration from the default search paths.
func Load() (*Config, error) {
	return NewLoader().Load()
}
