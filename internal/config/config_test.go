// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcaswell/driftwood/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftwood.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.EqualValues(t, 3, cfg.Auth.MaxFails)
	assert.Equal(t, 10*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, 30*time.Minute, cfg.Session.MaxDuration)
	assert.EqualValues(t, 5, cfg.Session.MaxRenewCount)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr: "0.0.0.0:9999"
log_format: text
auth:
  max_fails: 5
  lockout_duration: 1m
  blocklist:
    - admin
    - "*root*"
session:
  max_duration: 45m
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.EqualValues(t, 5, cfg.Auth.MaxFails)
	assert.Equal(t, time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, []string{"admin", "*root*"}, cfg.Auth.Blocklist)
	assert.Equal(t, 45*time.Minute, cfg.Session.MaxDuration)

	// Untouched keys keep their defaults.
	assert.EqualValues(t, 32, cfg.Auth.SaltLength)
	assert.EqualValues(t, 5, cfg.Session.MaxRenewCount)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `listen_addr: "0.0.0.0:9999"`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen-addr", "127.0.0.1:8080", "")
	flags.String("log-format", "json", "")
	require.NoError(t, flags.Parse([]string{"--listen-addr=10.0.0.1:80"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:80", cfg.ListenAddr, "changed flag wins over the file")
	assert.Equal(t, "json", cfg.LogFormat, "unchanged flag default does not mask the file")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty listen addr", `listen_addr: ""`},
		{"zero max fails", "auth:\n  max_fails: 0"},
		{"inverted username bounds", "auth:\n  min_username_len: 10\n  max_username_len: 4"},
		{"zero session duration", "session:\n  max_duration: 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := config.Load(path, nil)
			assert.Error(t, err)
		})
	}
}

func TestDBPath(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/var/lib/driftwood"
	assert.Equal(t, filepath.Join("/var/lib/driftwood", "driftwood.db"), cfg.DBPath())
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "driftwood.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	assert.Equal(t, "/explicit.yaml", config.FindFile("/explicit.yaml", existing))
	assert.Equal(t, existing, config.FindFile("", filepath.Join(dir, "missing.yaml"), existing))
	assert.Equal(t, "", config.FindFile("", filepath.Join(dir, "missing.yaml")))
}
