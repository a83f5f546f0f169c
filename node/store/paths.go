package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// CellsDir returns the on-disk directory of the live cell store:
//
//	datadir/cells/
func CellsDir(datadir string) string {
	return filepath.Join(datadir, "cells")
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
