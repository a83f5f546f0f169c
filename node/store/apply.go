package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/u2/ckb-time-oracle/consensus"

	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotInitialized    = errors.New("store not initialized")
	ErrNothingToRollback = errors.New("no applied transaction to roll back")
)

// ApplyTx resolves tx against the live cells, verifies its scripts with v
// and commits the state change in one bbolt transaction: consumed cells
// are deleted, produced cells inserted, the type id index updated and a
// receipt and undo record stored. A rejected tx leaves the store untouched.
func (d *DB) ApplyTx(ctx context.Context, tx *consensus.Transaction, v *consensus.Verifier) (*Receipt, error) {
	if d == nil {
		return nil, fmt.Errorf("db: nil")
	}
	if v == nil {
		return nil, fmt.Errorf("verifier required")
	}
	if v.Hasher != nil && v.Hasher.Name() != d.hasher.Name() {
		return nil, fmt.Errorf("verifier hash provider %q does not match store %q", v.Hasher.Name(), d.hasher.Name())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manifest == nil {
		return nil, ErrNotInitialized
	}

	rtx, err := d.Resolve(tx)
	if err != nil {
		return nil, err
	}
	cycles, err := v.Verify(ctx, rtx)
	if err != nil {
		return nil, err
	}

	timeCell := d.hasher.Sum256(consensus.TimeCellBinary)
	typeIDOf := func(s *consensus.Script) ([32]byte, bool) {
		if s == nil {
			return [32]byte{}, false
		}
		h, ok := v.Registry.ResolveBinary(*s, rtx.CellDeps)
		if !ok || h != timeCell {
			return [32]byte{}, false
		}
		return consensus.TypeIDFromArgs(s.Args)
	}

	seq := d.manifest.AppliedTxCount + 1
	receipt := &Receipt{
		TxHash:   append([]byte(nil), rtx.Hash[:]...),
		Sequence: seq,
		Cycles:   cycles,
		Consumed: []string{},
		Created:  []string{},
	}
	undo := UndoRecord{PrevLastTxHashHex: d.manifest.LastTxHashHex}

	err = d.db.Update(func(btx *bolt.Tx) error {
		cells := btx.Bucket(bucketCells)
		ids := btx.Bucket(bucketTypeIDs)

		touched := make(map[[32]byte]bool)
		remember := func(id [32]byte) error {
			if touched[id] {
				return nil
			}
			touched[id] = true
			e := TypeIDUndo{TypeID: id}
			if prev := ids.Get(id[:]); prev != nil {
				p, err := decodeOutPointKey(prev)
				if err != nil {
					return err
				}
				e.Prev = &p
			}
			undo.TypeIDs = append(undo.TypeIDs, e)
			return nil
		}

		for _, in := range rtx.Inputs {
			key := encodeOutPointKey(in.OutPoint)
			if cells.Get(key) == nil {
				return &consensus.TxError{Code: consensus.TX_ERR_MISSING_CELL, Msg: "input " + in.OutPoint.String() + " is not live"}
			}
			if err := cells.Delete(key); err != nil {
				return err
			}
			undo.Spent = append(undo.Spent, in)
			receipt.Consumed = append(receipt.Consumed, in.OutPoint.String())

			if id, ok := typeIDOf(in.Output.Type); ok {
				if err := remember(id); err != nil {
					return err
				}
				if sameKey(ids.Get(id[:]), key) {
					if err := ids.Delete(id[:]); err != nil {
						return err
					}
				}
			}
		}

		for i, out := range tx.Outputs {
			point := consensus.OutPoint{TxHash: rtx.Hash, Index: uint32(i)} // #nosec G115 -- output count is bounded by the u32 molecule header.
			key := encodeOutPointKey(point)
			if cells.Get(key) != nil {
				return fmt.Errorf("cell %s already live", point)
			}
			val, err := encodeCell(consensus.CellMeta{OutPoint: point, Output: out, Data: tx.OutputsData[i]})
			if err != nil {
				return err
			}
			if err := cells.Put(key, val); err != nil {
				return err
			}
			undo.Created = append(undo.Created, point)
			receipt.Created = append(receipt.Created, point.String())

			if id, ok := typeIDOf(out.Type); ok {
				if err := remember(id); err != nil {
					return err
				}
				if err := ids.Put(id[:], key); err != nil {
					return err
				}
				receipt.TypeIDs = append(receipt.TypeIDs, append([]byte(nil), id[:]...))
			}
		}

		rb, err := encodeReceipt(receipt)
		if err != nil {
			return err
		}
		if err := btx.Bucket(bucketReceipts).Put(rtx.Hash[:], rb); err != nil {
			return err
		}
		ub, err := encodeUndoRecord(undo)
		if err != nil {
			return err
		}
		return btx.Bucket(bucketUndo).Put(rtx.Hash[:], ub)
	})
	if err != nil {
		return nil, err
	}

	m := *d.manifest
	m.AppliedTxCount = seq
	m.LastTxHashHex = hex32(rtx.Hash)
	if err := d.setManifest(&m); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Rollback reverses the most recently applied transaction and returns its
// hash. Transactions are undone strictly newest first; genesis cannot be
// rolled back.
func (d *DB) Rollback() ([32]byte, error) {
	var zero [32]byte
	if d == nil {
		return zero, fmt.Errorf("db: nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manifest == nil {
		return zero, ErrNotInitialized
	}
	if d.manifest.LastTxHashHex == "" {
		return zero, ErrNothingToRollback
	}
	txHash, err := parseHex32(d.manifest.LastTxHashHex)
	if err != nil {
		return zero, fmt.Errorf("manifest last_tx_hash: %w", err)
	}

	var undo *UndoRecord
	err = d.db.Update(func(btx *bolt.Tx) error {
		v := btx.Bucket(bucketUndo).Get(txHash[:])
		if v == nil {
			return fmt.Errorf("missing undo record for %s", hex32(txHash))
		}
		u, err := decodeUndoRecord(v)
		if err != nil {
			return err
		}
		undo = u

		cells := btx.Bucket(bucketCells)
		for _, p := range u.Created {
			if err := cells.Delete(encodeOutPointKey(p)); err != nil {
				return err
			}
		}
		for _, c := range u.Spent {
			val, err := encodeCell(c)
			if err != nil {
				return err
			}
			if err := cells.Put(encodeOutPointKey(c.OutPoint), val); err != nil {
				return err
			}
		}
		ids := btx.Bucket(bucketTypeIDs)
		for _, e := range u.TypeIDs {
			if e.Prev == nil {
				if err := ids.Delete(e.TypeID[:]); err != nil {
					return err
				}
				continue
			}
			if err := ids.Put(e.TypeID[:], encodeOutPointKey(*e.Prev)); err != nil {
				return err
			}
		}
		if err := btx.Bucket(bucketReceipts).Delete(txHash[:]); err != nil {
			return err
		}
		return btx.Bucket(bucketUndo).Delete(txHash[:])
	})
	if err != nil {
		return zero, err
	}

	m := *d.manifest
	m.AppliedTxCount--
	m.LastTxHashHex = undo.PrevLastTxHashHex
	if err := d.setManifest(&m); err != nil {
		return zero, err
	}
	return txHash, nil
}
