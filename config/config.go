// Package config holds the optional import policy, loaded from TOML. A
// missing or empty policy admits everything.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/dmatex/core"
)

// Config is the on-disk import policy.
type Config struct {
	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `toml:"log_level"`
	// AllowedFormats lists admissible fourcc names ("ARGB8888",
	// "XRGB8888", ...). Empty means no restriction.
	AllowedFormats []string `toml:"allowed_formats"`
	// AllowLinearFallback permits linear-tiling imports when the producer
	// did not fix a layout modifier.
	AllowLinearFallback bool `toml:"allow_linear_fallback"`
	// PreferSRGB asks for the sRGB sibling format by default.
	PreferSRGB bool `toml:"prefer_srgb"`
}

// Default is the zero policy: everything admitted, no fallback, warn-level
// logging.
func Default() *Config {
	return &Config{LogLevel: "warn"}
}

// Load reads and applies a TOML policy file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.apply()
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply() {
	if c.LogLevel != "" {
		core.SetLogLevel(c.LogLevel)
	}
}

// Admit reports whether the policy allows importing the named format.
func (c *Config) Admit(format string) error {
	if len(c.AllowedFormats) == 0 {
		return nil
	}
	if slices.Contains(c.AllowedFormats, format) {
		return nil
	}
	return fmt.Errorf("format %s not in allowed_formats", format)
}
