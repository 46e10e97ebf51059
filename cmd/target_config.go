package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TargetConfig lists the device presets that --target can name. Presets are
// a convenience over --mem-per-unit for devices we know the geometry of.
type TargetConfig struct {
	Targets []TargetSpec `yaml:"targets"`
}

// TargetSpec describes one device preset.
type TargetSpec struct {
	Name         string `yaml:"name"`           // preset name, e.g. "ipu-mk2"
	NumUnits     int    `yaml:"num_units"`      // resource units (tiles) per device
	BytesPerUnit int64  `yaml:"bytes_per_unit"` // memory budget per unit
}

// DefaultTargetConfig returns the built-in presets used when no
// --target-config file is given.
func DefaultTargetConfig() *TargetConfig {
	return &TargetConfig{
		Targets: []TargetSpec{
			{Name: "ipu-mk1", NumUnits: 1216, BytesPerUnit: 262144},
			{Name: "ipu-mk2", NumUnits: 1472, BytesPerUnit: 638976},
			{Name: "ipu-bow", NumUnits: 1472, BytesPerUnit: 638976},
		},
	}
}

// LoadTargetConfig reads device presets from a YAML file. Parsing is strict:
// unrecognized keys (typos) are rejected.
func LoadTargetConfig(path string) (*TargetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading target config: %w", err)
	}
	var cfg TargetConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing target config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every preset is usable.
func (c *TargetConfig) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("target config lists no targets")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		prefix := fmt.Sprintf("target[%d]", i)
		if t.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if seen[t.Name] {
			return fmt.Errorf("%s: duplicate name %q", prefix, t.Name)
		}
		seen[t.Name] = true
		if t.NumUnits <= 0 {
			return fmt.Errorf("%s: num_units must be positive, got %d", prefix, t.NumUnits)
		}
		if t.BytesPerUnit <= 0 {
			return fmt.Errorf("%s: bytes_per_unit must be positive, got %d", prefix, t.BytesPerUnit)
		}
	}
	return nil
}

// Lookup returns the preset with the given name.
func (c *TargetConfig) Lookup(name string) (*TargetSpec, bool) {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], true
		}
	}
	return nil, false
}
