// Package config loads the TOML-tagged configuration for a fsadict store:
// where its segments live on disk, and the matcher tuning defaults its
// service layer applies when a request does not override them.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration document.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Matching MatchingConfig `toml:"matching"`
}

// StoreConfig locates the segment store on disk.
type StoreConfig struct {
	Root string `toml:"root"`
}

// MatchingConfig supplies default tuning for fuzzy and near matching when a
// request does not specify its own.
type MatchingConfig struct {
	DefaultMinimumExactPrefix int  `toml:"default_minimum_exact_prefix"`
	MaxEditDistanceCap        int  `toml:"max_edit_distance_cap"`
	DefaultGreedy             bool `toml:"default_greedy"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Root: "data",
		},
		Matching: MatchingConfig{
			DefaultMinimumExactPrefix: 2,
			MaxEditDistanceCap:        2,
			DefaultGreedy:             false,
		},
	}
}

// Load reads and decodes a TOML config file, starting from Default() so an
// omitted section or field keeps its default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config %s: unrecognized keys: %v", path, undecoded)
	}
	return cfg, nil
}
