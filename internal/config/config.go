// Package config loads the fkms YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Filename = "fkms.yaml"

	DefaultMaxRefreshRate = 85
	DefaultIRQ            = 48
)

type Config struct {
	// MaxRefreshRate rejects modes refreshing faster than this (Hz).
	MaxRefreshRate int `yaml:"maxRefreshRate"`
	// HDMIEvenTimings rejects odd horizontal HDMI timings (BCM2711).
	HDMIEvenTimings bool `yaml:"hdmiEvenTimings,omitempty"`

	IRQ       uint8           `yaml:"irq"`
	Registers RegistersConfig `yaml:"registers"`

	Log   LogConfig   `yaml:"log"`
	Trace TraceConfig `yaml:"trace,omitempty"`

	Emulator EmulatorConfig `yaml:"emulator"`
}

type RegistersConfig struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is text, json or auto (json when stderr is not a terminal).
	Format string `yaml:"format"`
}

type TraceConfig struct {
	File string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.MaxRefreshRate == 0 {
		c.MaxRefreshRate = DefaultMaxRefreshRate
	}
	if c.IRQ == 0 {
		c.IRQ = DefaultIRQ
	}
	if c.Registers.Base == 0 {
		c.Registers.Base = 0x7e600000
	}
	if c.Registers.Size == 0 {
		c.Registers.Size = 0x100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	c.Emulator.normalize()
}

// Validate reports the first inconsistency in c.
func (c Config) Validate() error {
	if c.MaxRefreshRate < 0 {
		return fmt.Errorf("maxRefreshRate %d is negative", c.MaxRefreshRate)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("log.format %q must be text, json or auto", c.Log.Format)
	}
	if err := c.Emulator.validate(); err != nil {
		return fmt.Errorf("emulator: %w", err)
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// Parse decodes a YAML document and applies defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", Filename, err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", Filename, err)
	}
	return c, nil
}

// Load reads the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Write stores c as YAML at path.
func Write(path string, c Config) error {
	c.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
