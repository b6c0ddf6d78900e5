// Package config loads shell configuration from luw.toml with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
)

// Config is the resolved shell configuration. File values come from
// luw.toml; LUW_* environment variables override them.
type Config struct {
	// ThreadCount caps concurrently running cluster members.
	ThreadCount int `toml:"thread-count"`

	// MemberTimeoutSec bounds a single cluster member, in seconds.
	// Zero disables the bound.
	MemberTimeoutSec int `toml:"member-timeout-sec"`

	// HistoryFile stores interactive line history.
	HistoryFile string `toml:"history-file"`

	// Color enables colorized interactive output.
	Color bool `toml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ThreadCount: 4,
		HistoryFile: defaultHistoryPath(),
		Color:       true,
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".luw_history"
	}
	return filepath.Join(home, ".luw_history")
}

// Path returns the config file location: LUW_CONFIG if set, otherwise
// ~/.luw.toml.
func Path() string {
	if p := env.Str("LUW_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".luw.toml"
	}
	return filepath.Join(home, ".luw.toml")
}

// Load reads the configuration file at path and applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse error in %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}

	return applyEnv(cfg), nil
}

// applyEnv layers LUW_* environment variables over the file values.
func applyEnv(cfg Config) Config {
	cfg.ThreadCount = env.Int("LUW_THREADS", cfg.ThreadCount)
	cfg.MemberTimeoutSec = env.Int("LUW_MEMBER_TIMEOUT", cfg.MemberTimeoutSec)
	if h := env.Str("LUW_HISTORY"); h != "" {
		cfg.HistoryFile = h
	}
	if env.Str("NO_COLOR") != "" {
		cfg.Color = false
	}
	return cfg
}
