package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
)

func TestValidateConfigOK(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown hash", func(c *Config) { c.HashAlgorithm = "md5" }},
		{"zero cycles", func(c *Config) { c.MaxCycles = 0 }},
		{"cycles too high", func(c *Config) { c.MaxCycles = MaxCyclesLimit + 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateConfigAcceptsEveryProvider(t *testing.T) {
	for _, name := range crypto.ProviderNames() {
		cfg := DefaultConfig()
		cfg.HashAlgorithm = name
		require.NoError(t, ValidateConfig(cfg), name)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timecell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /var/lib/timecell\nlog_level: debug\nhash_algorithm: blake3\n"), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))
	require.Equal(t, "/var/lib/timecell", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, crypto.NameBlake3, cfg.HashAlgorithm)
	require.Equal(t, consensus.DefaultMaxCycles, cfg.MaxCycles)
}

func TestLoadConfigFileRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timecell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_peers: 8\n"), 0o600))
	cfg := DefaultConfig()
	require.Error(t, LoadConfigFile(path, &cfg))
}

func TestLoadConfigFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timecell.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TIMECELL_DATA_DIR", "/tmp/from-env")
	t.Setenv("TIMECELL_MAX_CYCLES", "12345")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg))
	require.Equal(t, "/tmp/from-env", cfg.DataDir)
	require.Equal(t, uint64(12345), cfg.MaxCycles)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestApplyEnvRejectsBadNumber(t *testing.T) {
	t.Setenv("TIMECELL_MAX_CYCLES", "lots")
	cfg := DefaultConfig()
	require.Error(t, ApplyEnv(&cfg))
}

func TestReadFileLimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(path, make([]byte, maxFileSize+1), 0o600))
	_, err := ReadFileLimited(path)
	require.ErrorContains(t, err, "larger than")

	_, err = ReadFileLimited(dir)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug")
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(-1))

	log, err = NewLogger("warn")
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(0))

	_, err = NewLogger("loud")
	require.Error(t, err)
}
