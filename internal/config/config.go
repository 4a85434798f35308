// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package config loads the server configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full server configuration.
type Config struct {
	LogFormat   string `koanf:"log_format"`
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	DataDir     string `koanf:"data_dir"`
	StaticDir   string `koanf:"static_dir"`
	BlogDir     string `koanf:"blog_dir"`

	Auth    Auth    `koanf:"auth"`
	Session Session `koanf:"session"`
}

// Auth configures the credential manager.
type Auth struct {
	LockoutDuration time.Duration `koanf:"lockout_duration"`
	MaxFails        uint8         `koanf:"max_fails"`
	SaltLength      uint32        `koanf:"salt_length"`
	HashLength      uint32        `koanf:"hash_length"`
	MinUsernameLen  int           `koanf:"min_username_len"`
	MaxUsernameLen  int           `koanf:"max_username_len"`
	PasswordPattern string        `koanf:"password_pattern"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	Blocklist       []string      `koanf:"blocklist"`
}

// Session configures the session store.
type Session struct {
	MaxDuration     time.Duration `koanf:"max_duration"`
	MaxRenewCount   uint8         `koanf:"max_renew_count"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() *Config {
	return &Config{
		LogFormat:   "json",
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:9100",
		DataDir:     "",
		StaticDir:   "site",
		BlogDir:     "blogs",
		Auth: Auth{
			LockoutDuration: 10 * time.Minute,
			MaxFails:        3,
			SaltLength:      32,
			HashLength:      32,
			MinUsernameLen:  8,
			MaxUsernameLen:  16,
			PasswordPattern: `^.{8,64}$`,
			CleanupInterval: 2 * time.Hour,
			Blocklist:       nil,
		},
		Session: Session{
			MaxDuration:     30 * time.Minute,
			MaxRenewCount:   5,
			CleanupInterval: 2 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty the file layer is skipped; if given it must exist), then any
// changed flags in flags (may be nil). Flag names map to top-level keys with
// dashes replaced by underscores.
func (c *Config) Load(path string, flags *pflag.FlagSet) error {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k,
			func(key string, value string) (string, any) {
				return strings.ReplaceAll(key, "-", "_"), value
			})
		if err := k.Load(provider, nil); err != nil {
			return oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", c); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}

	return c.validate()
}

// Load is the package-level convenience: defaults overlaid with the file at
// path and the given flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	if err := cfg.Load(path, flags); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr must not be empty")
	}
	if c.Auth.MaxFails < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.max_fails must be at least 1")
	}
	if c.Auth.MinUsernameLen < 1 || c.Auth.MaxUsernameLen < c.Auth.MinUsernameLen {
		return oops.Code("CONFIG_INVALID").Errorf(
			"auth username length bounds are inconsistent: min=%d max=%d",
			c.Auth.MinUsernameLen, c.Auth.MaxUsernameLen)
	}
	if c.Session.MaxDuration <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.max_duration must be positive")
	}
	return nil
}

// DBPath returns the SQLite database location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "driftwood.db")
}

// FindFile returns the first existing config file among path (if given) and
// the conventional locations, or "" when none exists. An explicitly given
// path that does not exist is returned as-is so loading can fail loudly.
func FindFile(path string, candidates ...string) string {
	if path != "" {
		return path
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
