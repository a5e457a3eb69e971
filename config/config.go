// Package config loads user preferences from a TOML file and the
// environment. Validation happens before any device or network resource
// is touched; a bad configuration never leaves anything to clean up.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfiguration covers missing credentials and out-of-range
// settings.
var ErrInvalidConfiguration = errors.New("invalid configuration")

const (
	fileName = "config.toml"

	// Speech-rate bounds. Values outside this range are rejected
	// rather than clamped so a typo is noticed.
	minSpeed = 0.25
	maxSpeed = 4.0
)

type Config struct {
	APIKey string  `toml:"api_key"`
	Voice  string  `toml:"voice"`
	Role   string  `toml:"role"`
	Speed  float64 `toml:"speed"`
	Device string  `toml:"device"`
}

// DefaultPath is <user config dir>/vox/config.toml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "vox", fileName), nil
}

// Load reads the file at path, then lets GEMINI_API_KEY override the
// stored credential. A missing file yields an empty configuration; a
// file that fails to parse is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfiguration, path, err)
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot start a session.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: no API key (set GEMINI_API_KEY or api_key in the config file)", ErrInvalidConfiguration)
	}
	if c.Speed != 0 && (c.Speed < minSpeed || c.Speed > maxSpeed) {
		return fmt.Errorf("%w: speed %.2f outside [%.2f, %.2f]", ErrInvalidConfiguration, c.Speed, minSpeed, maxSpeed)
	}
	return nil
}

// Save writes the configuration back to path, creating parent
// directories as needed. The credential is persisted only if it did not
// come from the environment.
func Save(path string, cfg *Config) error {
	out := *cfg
	if os.Getenv("GEMINI_API_KEY") == out.APIKey {
		out.APIKey = ""
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(&out)
}
