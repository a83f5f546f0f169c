package consensus

import (
	"fmt"

	"github.com/u2/ckb-time-oracle/crypto"
)

// MintRequest describes a transaction creating a new time cell.
type MintRequest struct {
	// Funding is consumed as the transaction's first input and seeds the type id.
	Funding OutPoint
	// Lock guards the new time cell; its hash is bound into the args.
	Lock Script
	// CodeHash and HashType locate the time cell program.
	CodeHash [32]byte
	HashType ScriptHashType
	CellDeps []CellDep
	Capacity uint64
	Data     []byte
	// Change, if set, is emitted before the time cell so the time cell
	// lands at output index 1.
	Change *CellOutput
}

// BuildMintTx assembles a mint transaction and returns it with the type id
// the new time cell carries.
func BuildMintTx(hasher crypto.HashProvider, req MintRequest) (*Transaction, [32]byte, error) {
	if !req.HashType.Valid() {
		return nil, [32]byte{}, fmt.Errorf("mint: invalid hash_type %d", req.HashType)
	}
	first := CellInput{PreviousOutput: req.Funding}
	tx := &Transaction{
		CellDeps: append([]CellDep(nil), req.CellDeps...),
		Inputs:   []CellInput{first},
	}
	if req.Change != nil {
		tx.Outputs = append(tx.Outputs, *req.Change)
		tx.OutputsData = append(tx.OutputsData, nil)
	}
	index := uint64(len(tx.Outputs))
	typeID := DeriveTypeID(hasher, first, index)
	typ := Script{
		CodeHash: req.CodeHash,
		HashType: req.HashType,
		Args:     TypeIDArgs(typeID, req.Lock.Hash(hasher)),
	}
	tx.Outputs = append(tx.Outputs, CellOutput{Capacity: req.Capacity, Lock: req.Lock, Type: &typ})
	tx.OutputsData = append(tx.OutputsData, append([]byte(nil), req.Data...))
	return tx, typeID, nil
}

// BuildUpdateTx spends the live time cell current and recreates it with
// new data; lock, type script and capacity are carried over.
func BuildUpdateTx(current CellMeta, deps []CellDep, data []byte) (*Transaction, error) {
	if current.Output.Type == nil {
		return nil, fmt.Errorf("update: cell %s has no type script", current.OutPoint)
	}
	typ := *current.Output.Type
	typ.Args = append([]byte(nil), typ.Args...)
	return &Transaction{
		CellDeps: append([]CellDep(nil), deps...),
		Inputs:   []CellInput{{PreviousOutput: current.OutPoint}},
		Outputs: []CellOutput{{
			Capacity: current.Output.Capacity,
			Lock:     current.Output.Lock,
			Type:     &typ,
		}},
		OutputsData: [][]byte{append([]byte(nil), data...)},
	}, nil
}
