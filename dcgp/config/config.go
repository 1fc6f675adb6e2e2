// Package config loads run configuration for the graph shape, kernel set,
// SGD hyperparameters, and memetic-search parameters from an INI file,
// mirroring the load-then-derive-then-validate shape used throughout this
// corpus's NEAT configuration loader.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Config holds every run parameter enumerated by the configuration-options
// table: graph shape, kernel set, SGD hyperparameters, and memetic-search
// parameters.
type Config struct {
	Graph   GraphConfig
	Kernels KernelsConfig
	SGD     SGDConfig
	Memetic MemeticConfig
}

// GraphConfig holds the Expression's shape and the random engine's seed.
type GraphConfig struct {
	NumInputs    int    `ini:"n"`
	NumOutputs   int    `ini:"m"`
	Rows         int    `ini:"r"`
	Cols         int    `ini:"c"`
	LevelsBack   int    `ini:"l"`
	Arity        []int  `ini:"arity" delim:" "`
	NumConstants int    `ini:"n_eph"`
	Seed         uint64 `ini:"seed"`
	Parallel     bool   `ini:"parallel"`
}

// KernelsConfig holds the ordered kernel set, indexed by function genes.
type KernelsConfig struct {
	Names []string `ini:"kernels" delim:" "`
}

// SGDConfig holds WeightedExpression's stochastic-gradient-descent
// hyperparameters.
type SGDConfig struct {
	LearningRate float64 `ini:"lr"`
	BatchSize    int     `ini:"batch_size"`
	LossKind     string  `ini:"loss_kind"` // "MSE" or "CE"
}

// MemeticConfig holds the memetic multi-objective search's parameters.
type MemeticConfig struct {
	MaxMut    int `ini:"max_mut"`
	Gen       int `ini:"gen"`
	Verbosity int `ini:"verbosity"`
}

// Load reads configuration from an INI file with sections [Graph],
// [Kernels], [SGD], and [Memetic], then derives and validates it.
func Load(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := &Config{}
	if err := cfg.Section("Graph").MapTo(&config.Graph); err != nil {
		return nil, fmt.Errorf("failed to map [Graph] section: %w", err)
	}
	if err := cfg.Section("Kernels").MapTo(&config.Kernels); err != nil {
		return nil, fmt.Errorf("failed to map [Kernels] section: %w", err)
	}
	if err := cfg.Section("SGD").MapTo(&config.SGD); err != nil {
		return nil, fmt.Errorf("failed to map [SGD] section: %w", err)
	}
	if err := cfg.Section("Memetic").MapTo(&config.Memetic); err != nil {
		return nil, fmt.Errorf("failed to map [Memetic] section: %w", err)
	}

	for i, k := range config.Kernels.Names {
		config.Kernels.Names[i] = strings.TrimSpace(k)
	}

	if config.SGD.LossKind == "" {
		config.SGD.LossKind = "MSE"
	}
	if config.Memetic.Verbosity < 0 {
		config.Memetic.Verbosity = 0
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	g := c.Graph
	if g.NumInputs <= 0 {
		return fmt.Errorf("config error: n must be positive")
	}
	if g.NumOutputs <= 0 {
		return fmt.Errorf("config error: m must be positive")
	}
	if g.Rows <= 0 {
		return fmt.Errorf("config error: r must be positive")
	}
	if g.Cols <= 0 {
		return fmt.Errorf("config error: c must be positive")
	}
	if g.LevelsBack <= 0 {
		return fmt.Errorf("config error: l must be positive")
	}
	if len(g.Arity) != 1 && len(g.Arity) != g.Cols {
		return fmt.Errorf("config error: arity must have length 1 or c (%d), got %d", g.Cols, len(g.Arity))
	}
	for _, a := range g.Arity {
		if a < 1 {
			return fmt.Errorf("config error: every arity entry must be >= 1")
		}
	}
	if g.NumConstants < 0 {
		return fmt.Errorf("config error: n_eph cannot be negative")
	}

	if len(c.Kernels.Names) == 0 {
		return fmt.Errorf("config error: kernels must be specified")
	}

	if c.SGD.LearningRate <= 0 {
		return fmt.Errorf("config error: lr must be positive")
	}
	if c.SGD.BatchSize <= 0 {
		return fmt.Errorf("config error: batch_size must be positive")
	}
	validLoss := map[string]bool{"MSE": true, "CE": true}
	if !validLoss[c.SGD.LossKind] {
		return fmt.Errorf("config error: invalid loss_kind '%s', must be one of 'MSE', 'CE'", c.SGD.LossKind)
	}

	if c.Memetic.MaxMut <= 0 {
		return fmt.Errorf("config error: max_mut must be positive")
	}
	if c.Memetic.Gen < 0 {
		return fmt.Errorf("config error: gen cannot be negative")
	}

	return nil
}

// ResolvedArity expands the [Graph] arity option to one entry per column,
// broadcasting a single value across every column when only one was given.
func (g GraphConfig) ResolvedArity() []int {
	if len(g.Arity) == g.Cols {
		return append([]int(nil), g.Arity...)
	}
	out := make([]int, g.Cols)
	for i := range out {
		out[i] = g.Arity[0]
	}
	return out
}
