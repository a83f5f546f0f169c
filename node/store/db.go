package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCells    = []byte("live_cells")
	bucketTypeIDs  = []byte("type_ids")
	bucketReceipts = []byte("receipts")
	bucketUndo     = []byte("undo_by_tx_hash")
)

type DB struct {
	cellsDir string
	db       *bolt.DB
	hasher   crypto.HashProvider

	// mu serializes ApplyTx so resolve, verify and commit see one state.
	mu       sync.Mutex
	manifest *Manifest
}

func Open(datadir string, hasher crypto.HashProvider) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hash provider required")
	}

	cellsDir := CellsDir(datadir)
	if err := ensureDir(cellsDir); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Join(cellsDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(cellsDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{cellsDir: cellsDir, db: bdb, hasher: hasher}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCells, bucketTypeIDs, bucketReceipts, bucketUndo} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(cellsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil // uninitialized store; caller must InitGenesis.
		}
		_ = bdb.Close()
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.HashProvider != hasher.Name() {
		_ = bdb.Close()
		return nil, fmt.Errorf("store was created with hash provider %q, opened with %q", m.HashProvider, hasher.Name())
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) CellsDir() string { return d.cellsDir }

func (d *DB) Hasher() crypto.HashProvider { return d.hasher }

// Manifest returns a copy of the current manifest, or nil before InitGenesis.
func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manifest == nil {
		return nil
	}
	m := *d.manifest
	return &m
}

func (d *DB) setManifest(m *Manifest) error {
	if err := writeManifestAtomic(d.cellsDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// Cell implements consensus.CellProvider over the live cell set.
func (d *DB) Cell(point consensus.OutPoint) (consensus.CellMeta, bool, error) {
	var out consensus.CellMeta
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getCell(tx, point)
		return err
	})
	return out, ok, err
}

func (d *DB) GetCell(point consensus.OutPoint) (consensus.CellMeta, bool, error) {
	return d.Cell(point)
}

func (d *DB) PutCell(c consensus.CellMeta) error {
	val, err := encodeCell(c)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).Put(encodeOutPointKey(c.OutPoint), val)
	})
}

func (d *DB) DeleteCell(point consensus.OutPoint) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).Delete(encodeOutPointKey(point))
	})
}

// LiveCells returns every live cell ordered by out point key.
func (d *DB) LiveCells() ([]consensus.CellMeta, error) {
	var out []consensus.CellMeta
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).ForEach(func(k, v []byte) error {
			point, err := decodeOutPointKey(k)
			if err != nil {
				return err
			}
			c, err := decodeCell(point, v)
			if err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// LookupTypeID returns the out point of the live time cell carrying typeID.
func (d *DB) LookupTypeID(typeID [32]byte) (consensus.OutPoint, bool, error) {
	var out consensus.OutPoint
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTypeIDs).Get(typeID[:])
		if v == nil {
			return nil
		}
		p, err := decodeOutPointKey(v)
		if err != nil {
			return err
		}
		out, ok = p, true
		return nil
	})
	return out, ok, err
}

// TypeIDs lists every live type id.
func (d *DB) TypeIDs() ([][32]byte, error) {
	var out [][32]byte
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTypeIDs).ForEach(func(k, _ []byte) error {
			if len(k) != 32 {
				return fmt.Errorf("type id: bad key length %d", len(k))
			}
			var id [32]byte
			copy(id[:], k)
			out = append(out, id)
			return nil
		})
	})
	return out, err
}

func (d *DB) GetUndo(txHash [32]byte) (*UndoRecord, bool, error) {
	var out *UndoRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUndo).Get(txHash[:])
		if v == nil {
			return nil
		}
		u, err := decodeUndoRecord(v)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (d *DB) Receipt(txHash [32]byte) (*Receipt, bool, error) {
	var out *Receipt
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(txHash[:])
		if v == nil {
			return nil
		}
		r, err := decodeReceipt(v)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// Resolve loads the cells tx consumes and depends on.
func (d *DB) Resolve(tx *consensus.Transaction) (*consensus.ResolvedTransaction, error) {
	return consensus.Resolve(d.hasher, tx, d)
}

func getCell(tx *bolt.Tx, point consensus.OutPoint) (consensus.CellMeta, bool, error) {
	v := tx.Bucket(bucketCells).Get(encodeOutPointKey(point))
	if v == nil {
		return consensus.CellMeta{}, false, nil
	}
	c, err := decodeCell(point, v)
	if err != nil {
		return consensus.CellMeta{}, false, err
	}
	return c, true, nil
}

func hex32(b32 [32]byte) string {
	return hex.EncodeToString(b32[:])
}

func parseHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func sameKey(a, b []byte) bool { return bytes.Equal(a, b) }
