package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config mirrors the on-disk config.toml. Everything in it is optional.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Pointer fields
// distinguish "unset" from an explicit zero value.
type DefaultsConfig struct {
	Workers     *int    `toml:"workers"`
	Hash        *string `toml:"hash"`
	BWLimit     *string `toml:"bwlimit"`
	Quiet       *bool   `toml:"quiet"`
	DigestCache *bool   `toml:"digest_cache"`
}

// Load reads the config file if one exists. A missing file, or a home
// directory that cannot be determined, yields a zero Config without
// error; the file is never required.
func Load() (Config, error) {
	var cfg Config
	path := Path()
	if path == "" {
		return cfg, nil
	}
	switch _, err := toml.DecodeFile(path, &cfg); {
	case errors.Is(err, os.ErrNotExist):
		return Config{}, nil
	case err != nil:
		return Config{}, err
	}
	return cfg, nil
}

// Path returns where mirra looks for its config file, following XDG on
// every platform.
func Path() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mirra", "config.toml")
}
