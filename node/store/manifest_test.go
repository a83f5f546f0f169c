package store

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validManifest() *Manifest {
	return &Manifest{
		SchemaVersion:    SchemaVersionV1,
		HashProvider:     "ckb-blake2b",
		GenesisTxHashHex: strings.Repeat("ab", 32),
	}
}

func TestManifest_WriteRead(t *testing.T) {
	dir := t.TempDir()
	m := validManifest()
	m.AppliedTxCount = 2
	m.LastTxHashHex = strings.Repeat("cd", 32)
	require.NoError(t, writeManifestAtomic(dir, m))

	got, err := readManifest(dir)
	require.NoError(t, err)
	require.Equal(t, m, got)

	_, err = os.Stat(manifestPath(dir) + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestManifest_Validate(t *testing.T) {
	cases := map[string]func(*Manifest){
		"schema zero":        func(m *Manifest) { m.SchemaVersion = 0 },
		"schema future":      func(m *Manifest) { m.SchemaVersion = SchemaVersionV1 + 1 },
		"no provider":        func(m *Manifest) { m.HashProvider = "" },
		"bad genesis":        func(m *Manifest) { m.GenesisTxHashHex = "00" },
		"count without hash": func(m *Manifest) { m.AppliedTxCount = 1 },
		"hash without count": func(m *Manifest) { m.LastTxHashHex = strings.Repeat("cd", 32) },
		"bad last hash": func(m *Manifest) {
			m.AppliedTxCount = 1
			m.LastTxHashHex = "zz"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := validManifest()
			mutate(m)
			require.Error(t, m.validate())
			require.Error(t, writeManifestAtomic(t.TempDir(), m))
		})
	}
}

func TestManifest_ReadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(manifestPath(dir), []byte("{"), 0o600))
	_, err := readManifest(dir)
	require.ErrorContains(t, err, "manifest json")
}
