package node

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
)

// MaxCyclesLimit bounds the configurable per-transaction cycle budget.
const MaxCyclesLimit uint64 = 1 << 40

type Config struct {
	DataDir       string `yaml:"data_dir" json:"data_dir" env:"TIMECELL_DATA_DIR"`
	LogLevel      string `yaml:"log_level" json:"log_level" env:"TIMECELL_LOG_LEVEL"`
	HashAlgorithm string `yaml:"hash_algorithm" json:"hash_algorithm" env:"TIMECELL_HASH_ALGORITHM"`
	MaxCycles     uint64 `yaml:"max_cycles" json:"max_cycles" env:"TIMECELL_MAX_CYCLES"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".timecell"
	}
	return filepath.Join(home, ".timecell")
}

func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      "info",
		HashAlgorithm: crypto.NameCKBBlake2b,
		MaxCycles:     consensus.DefaultMaxCycles,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Unknown keys are
// an error.
func LoadConfigFile(path string, cfg *Config) error {
	b, err := ReadFileLimited(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays TIMECELL_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if _, err := crypto.ProviderByName(cfg.HashAlgorithm); err != nil {
		return fmt.Errorf("invalid hash_algorithm: %w", err)
	}
	if cfg.MaxCycles == 0 {
		return errors.New("max_cycles must be > 0")
	}
	if cfg.MaxCycles > MaxCyclesLimit {
		return fmt.Errorf("max_cycles must be <= %d", MaxCyclesLimit)
	}
	return nil
}

// Hasher returns the hash provider cfg names.
func (cfg Config) Hasher() (crypto.HashProvider, error) {
	return crypto.ProviderByName(cfg.HashAlgorithm)
}
