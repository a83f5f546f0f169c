package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const SchemaVersionV1 uint32 = 1

// Manifest is the store's commit point, rewritten after every state change.
type Manifest struct {
	SchemaVersion uint32 `json:"schema_version"`
	HashProvider  string `json:"hash_provider"`

	GenesisTxHashHex    string `json:"genesis_tx_hash"`
	GenesisFundingCells uint32 `json:"genesis_funding_cells"`

	AppliedTxCount uint64 `json:"applied_tx_count"`
	LastTxHashHex  string `json:"last_tx_hash,omitempty"`
}

func (m *Manifest) validate() error {
	if m.SchemaVersion == 0 || m.SchemaVersion > SchemaVersionV1 {
		return fmt.Errorf("manifest: unsupported schema_version %d", m.SchemaVersion)
	}
	if m.HashProvider == "" {
		return errors.New("manifest: hash_provider missing")
	}
	if _, err := parseHex32(m.GenesisTxHashHex); err != nil {
		return fmt.Errorf("manifest: genesis_tx_hash: %w", err)
	}
	if (m.LastTxHashHex == "") != (m.AppliedTxCount == 0) {
		return fmt.Errorf("manifest: last_tx_hash %q inconsistent with applied_tx_count %d", m.LastTxHashHex, m.AppliedTxCount)
	}
	if m.LastTxHashHex != "" {
		if _, err := parseHex32(m.LastTxHashHex); err != nil {
			return fmt.Errorf("manifest: last_tx_hash: %w", err)
		}
	}
	return nil
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "MANIFEST.json")
}

func readManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(dir)) // #nosec G304 -- dir is derived from operator-controlled datadir.
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest json: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// writeManifestAtomic replaces MANIFEST.json so that a crash leaves either
// the old or the new manifest, never a partial one.
func writeManifestAtomic(dir string, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil")
	}
	if err := m.validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest json: %w", err)
	}
	final := manifestPath(dir)
	tmp := final + ".tmp"
	if err := writeFileSync(tmp, append(b, '\n')); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("manifest rename: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

func writeFileSync(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- path is derived from operator-controlled datadir.
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir) // #nosec G304 -- dir is derived from operator-controlled datadir.
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("fsync dir %s: %w", dir, err)
	}
	return d.Close()
}
