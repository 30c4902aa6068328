package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/tmodpack/internal/tmod"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tmodpack.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultFormatVersion, cfg.FormatVersion)
	assert.Equal(t, filepath.Join(home, ".tmodpack", "mods"), cfg.OutputDir)
	assert.Equal(t, filepath.Join(home, ".tmodpack", "catalog.db"), cfg.Catalog)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.False(t, cfg.RawImg)
	assert.Empty(t, cfg.Transcoders())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, tmod.DefaultPolicy(), policy)
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
format_version: 0.11.8.9
output_dir: /tmp/mods
log_level: debug
log_format: json
workers: 2
rawimg: true
compression:
  min_size: 64
  tradeoff: 0.5
  level: fastest
  exclude: [wav]
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "0.11.8.9", cfg.FormatVersion)
	assert.Equal(t, "/tmp/mods", cfg.OutputDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Workers)
	assert.Len(t, cfg.Transcoders(), 1)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 64, policy.MinSize)
	assert.Equal(t, 0.5, policy.Tradeoff)
	assert.Equal(t, tmod.LevelFastest, policy.Level)
	assert.False(t, policy.ShouldAttempt(".wav"))
	assert.True(t, policy.ShouldAttempt(".png"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"legacy format", "format_version: 0.10.1.5\n"},
		{"bad format", "format_version: latest\n"},
		{"log level", "log_level: loud\n"},
		{"log format", "log_format: xml\n"},
		{"workers", "workers: 0\n"},
		{"tradeoff", "compression:\n  tradeoff: 1.5\n"},
		{"min size", "compression:\n  min_size: -1\n"},
		{"level", "compression:\n  level: ultra\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
