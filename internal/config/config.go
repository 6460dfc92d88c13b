// Package config loads the YAML configuration shared by the unfas
// subcommands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"unfas/internal/decompiler"
	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/query"
	"unfas/internal/recovery"
	"unfas/internal/render"
)

type Config struct {
	// "strict" or "best-effort".
	Mode string `yaml:"mode"`
	// Instruction decode cap; 0 uses the built-in default.
	MaxSteps int `yaml:"max_steps"`
	// Input size cap in bytes; 0 is unlimited.
	MaxBytes int `yaml:"max_bytes"`
	// Concurrent decompilations in batch and watch.
	Workers int `yaml:"workers"`
	// Decompiled results kept by batch and watch; 0 uses the built-in
	// default.
	CacheSize int `yaml:"cache_size"`
	// String recovery thresholds.
	Recovery recovery.Options `yaml:"recovery"`
	// Extra opcode table files. Relative paths are resolved against the
	// directory holding the config file. Later tables override earlier ones
	// and the built-ins.
	OpcodeTables []string `yaml:"opcode_tables"`
	Render       Render   `yaml:"render"`

	dir string
}

type Render struct {
	// Append the recovered string table to the header.
	StringTable bool `yaml:"string_table"`
	// Column at which long calls wrap.
	Width int `yaml:"width"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Mode:     fasfmt.ModeBestEffort.String(),
		Recovery: recovery.DefaultOptions(),
		Render:   Render{Width: 100},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := fasfmt.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MaxSteps < 0 || c.MaxBytes < 0 || c.Workers < 0 || c.CacheSize < 0 {
		return fmt.Errorf("max_steps, max_bytes, workers and cache_size must be non-negative")
	}
	r := c.Recovery
	if r.AcceptThreshold < 0 || r.AcceptThreshold > 1 || r.HighConfidence < 0 || r.HighConfidence > 1 {
		return fmt.Errorf("recovery thresholds must be within [0,1]")
	}
	if r.AcceptThreshold > 0 && r.HighConfidence > 0 && r.HighConfidence < r.AcceptThreshold {
		return fmt.Errorf("recovery.high_confidence %.2f is below accept_threshold %.2f",
			r.HighConfidence, r.AcceptThreshold)
	}
	if c.Render.Width < 0 {
		return fmt.Errorf("render.width must be non-negative")
	}
	return nil
}

// TablePaths returns OpcodeTables with relative paths resolved.
func (c *Config) TablePaths() []string {
	out := make([]string, len(c.OpcodeTables))
	for i, p := range c.OpcodeTables {
		if !filepath.IsAbs(p) && c.dir != "" {
			p = filepath.Join(c.dir, p)
		}
		out[i] = p
	}
	return out
}

// Registry returns the built-in opcode tables plus the configured files.
func (c *Config) Registry() (*opcode.Registry, error) {
	reg, err := opcode.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, p := range c.TablePaths() {
		if _, err := reg.LoadFile(p); err != nil {
			return nil, fmt.Errorf("config: opcode table: %w", err)
		}
	}
	return reg, nil
}

// DecompileOptions builds pipeline options from c.
func (c *Config) DecompileOptions() (decompiler.Options, error) {
	mode, err := fasfmt.ParseMode(c.Mode)
	if err != nil {
		return decompiler.Options{}, err
	}
	reg, err := c.Registry()
	if err != nil {
		return decompiler.Options{}, err
	}
	return decompiler.Options{
		Options:  fasfmt.Options{Mode: mode, MaxSteps: c.MaxSteps, MaxBytes: c.MaxBytes},
		Recovery: c.Recovery,
		Registry: reg,
		Render:   render.LispOptions{StringTable: c.Render.StringTable, Width: c.Render.Width},
	}, nil
}

// QueryOptions builds facade options from c. The facade's metrics are not
// registered.
func (c *Config) QueryOptions() (query.Options, error) {
	opts, err := c.DecompileOptions()
	if err != nil {
		return query.Options{}, err
	}
	return query.Options{Decompile: opts, Workers: c.Workers, MaxEntries: c.CacheSize}, nil
}
