// Package config defines the simulator's tunables and CLI surface.
//
// Grounded on original_source/config.py for field defaults, and on
// EXCCoin-exccd's go.mod dependency on github.com/jessevdk/go-flags for the
// declarative struct-tag flag style idiomatic across the btcd/dcrd family
// this pack draws from.
package config

import (
	"fmt"
)

// Config holds every tunable spec.md §6 names, both the CLI-overridable
// subset and the fixed defaults that are not exposed as flags.
type Config struct {
	Algo        string `long:"algo" choice:"pow" choice:"hybrid" default:"pow" description:"block production algorithm"`
	Seed        string `long:"seed" default:"seed-0" description:"RNG domain seed"`
	KFinal      int    `long:"k" default:"4" description:"finality depth"`
	LimitMs     int64  `long:"limit_ms" default:"12000" description:"simulation horizon in virtual ms"`
	Delay       bool   `long:"delay" description:"use the slow-link delay/jitter profile"`
	Partition   bool   `long:"partition" description:"inject the default partition window"`
	LogPath     string `long:"log" default:"log.jsonl" description:"JSONL output log path"`

	// Fixed defaults, not exposed as flags (spec.md §6 "Configuration
	// defaults"), but overridable by tests that construct a Config
	// directly rather than through ParseArgs.
	NNodes             int
	BaseDelayMs        int64
	JitterMs           int64
	TargetBlockMs      int64
	PowD               int64
	HybridD            int64
	PartitionStartMs   int64
	PartitionEndMs     int64
	PartitionGroups    [][]int
	TxRatePerNodePerS  float64
	InitBalance        int64
}

// Defaults returns the configuration spec.md §6 names before any CLI
// overrides are applied.
func Defaults() Config {
	return Config{
		Algo:              "pow",
		Seed:              "seed-0",
		KFinal:            4,
		LimitMs:           12000,
		LogPath:           "log.jsonl",
		NNodes:            5,
		BaseDelayMs:       40,
		JitterMs:          60,
		TargetBlockMs:     250,
		PowD:              1 << 18,
		HybridD:           1 << 10,
		TxRatePerNodePerS: 2.0,
		InitBalance:       1000,
	}
}

// ApplyDerived fills in the fields that follow from the --delay/--partition
// boolean flags, matching original_source/main.py's parse_args exactly.
func (c *Config) ApplyDerived() {
	if c.Delay {
		c.BaseDelayMs = 60
		c.JitterMs = 80
	}
	if c.Partition {
		c.PartitionStartMs = 3000
		c.PartitionEndMs = 6000
		c.PartitionGroups = [][]int{{0, 1, 2}, {3, 4}}
	}
}

// Validate rejects configuration errors before the simulation starts, per
// spec.md §7 "Configuration errors (startup)".
func (c Config) Validate() error {
	if c.Algo != "pow" && c.Algo != "hybrid" {
		return fmt.Errorf("config: invalid --algo %q, want pow or hybrid", c.Algo)
	}
	if c.KFinal < 0 {
		return fmt.Errorf("config: --k must be non-negative, got %d", c.KFinal)
	}
	if c.LimitMs <= 0 {
		return fmt.Errorf("config: --limit_ms must be positive, got %d", c.LimitMs)
	}
	if c.NNodes < 1 {
		return fmt.Errorf("config: n_nodes must be at least 1, got %d", c.NNodes)
	}
	if c.PowD <= 0 || c.HybridD <= 0 {
		return fmt.Errorf("config: difficulty constants must be positive")
	}
	return nil
}
