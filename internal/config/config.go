// Package config defines the simulation core's configuration snapshot
// and the koanf-based loader that assembles it from defaults, a TOML
// document, and environment overrides.
package config

import (
	"fmt"
	"strings"
)

// Config is the fully resolved configuration for one simulation run.
type Config struct {
	Simulation  SimulationConfig  `koanf:"simulation"`
	Solver      SolverConfig      `koanf:"solver"`
	Allocation  AllocationConfig  `koanf:"allocation"`
	Interp      InterpConfig      `koanf:"interpolation"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// SimulationConfig controls the overall run window and output location.
type SimulationConfig struct {
	StartTime    string  `koanf:"starttime"`
	EndTime      string  `koanf:"endtime"`
	InputPath    string  `koanf:"input_path"`
	OutputDir    string  `koanf:"output_dir"`
	OutputFormat string  `koanf:"output_format"` // csv, xlsx
	SaveInterval float64 `koanf:"save_interval"`
	CrashBackup  bool    `koanf:"crash_backup"`
}

// SolverConfig controls the integrator and numerical tolerances.
type SolverConfig struct {
	Algorithm           string  `koanf:"algorithm"` // e.g. "dopri45"
	SaturatedRtol       float64 `koanf:"saturated_rtol"`
	AbsTol              float64 `koanf:"abstol"`
	RelTol              float64 `koanf:"reltol"`
	MaxTimestep         float64 `koanf:"maxtimestep"`
	WaterBalanceAbsTol  float64 `koanf:"water_balance_abstol"`
	WaterBalanceRelTol  float64 `koanf:"water_balance_reltol"`
	PidDerivativeFloor  bool    `koanf:"pid_derivative_floor"`
}

// AllocationConfig controls the lexicographic LP allocation subsystem.
type AllocationConfig struct {
	Enabled         bool    `koanf:"enabled"`
	TimestepSeconds float64 `koanf:"timestep_seconds"`
	SolverTimeout   string  `koanf:"solver_timeout"`
	MaxConcurrency  int     `koanf:"max_concurrency"`
}

// InterpConfig controls the default interpolation/extrapolation methods
// applied to time series lacking an explicit per-series override.
type InterpConfig struct {
	DefaultMethod       string `koanf:"default_method"` // constant, linear, pchip, index
	DefaultExtrapolation string `koanf:"default_extrapolation"` // constant, periodic
}

// LoggingConfig mirrors internal/logger.Config, koanf-tagged.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// Validate checks the configuration for internal consistency, collecting
// every problem found rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs []string

	if c.Simulation.InputPath == "" {
		errs = append(errs, "simulation.input_path is required")
	}

	validAlgorithms := map[string]bool{"dopri45": true}
	if !validAlgorithms[strings.ToLower(c.Solver.Algorithm)] {
		errs = append(errs, fmt.Sprintf("solver.algorithm must be one of: dopri45, got %q", c.Solver.Algorithm))
	}

	if c.Solver.AbsTol <= 0 {
		errs = append(errs, "solver.abstol must be positive")
	}
	if c.Solver.RelTol <= 0 {
		errs = append(errs, "solver.reltol must be positive")
	}
	if c.Solver.MaxTimestep <= 0 {
		errs = append(errs, "solver.maxtimestep must be positive")
	}

	validInterp := map[string]bool{"constant": true, "linear": true, "pchip": true, "index": true}
	if !validInterp[strings.ToLower(c.Interp.DefaultMethod)] {
		errs = append(errs, fmt.Sprintf("interpolation.default_method must be one of: constant, linear, pchip, index, got %q", c.Interp.DefaultMethod))
	}
	validExtrap := map[string]bool{"constant": true, "periodic": true}
	if !validExtrap[strings.ToLower(c.Interp.DefaultExtrapolation)] {
		errs = append(errs, fmt.Sprintf("interpolation.default_extrapolation must be one of: constant, periodic, got %q", c.Interp.DefaultExtrapolation))
	}

	if c.Allocation.MaxConcurrency < 0 {
		errs = append(errs, "allocation.max_concurrency must be non-negative")
	}

	if c.Simulation.SaveInterval <= 0 {
		errs = append(errs, "simulation.save_interval must be positive")
	}
	validFormats := map[string]bool{"csv": true, "xlsx": true}
	if !validFormats[strings.ToLower(c.Simulation.OutputFormat)] {
		errs = append(errs, fmt.Sprintf("simulation.output_format must be one of: csv, xlsx, got %q", c.Simulation.OutputFormat))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error, got %q", c.Logging.Level))
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Sprintf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
