// Package testctx builds and verifies transactions against an in-memory
// set of live cells. It plays the part of a chain for tests and tools.
package testctx

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
)

// Context holds live cells and deployed program cells.
type Context struct {
	Hasher   crypto.HashProvider
	Verifier *consensus.Verifier

	cells map[consensus.OutPoint]consensus.CellMeta
	// deps maps a deployed binary's data hash to its cell.
	deps  map[[32]byte]consensus.OutPoint
	nonce uint64
}

func New() *Context {
	return NewWithHasher(crypto.Default())
}

func NewWithHasher(h crypto.HashProvider) *Context {
	return &Context{
		Hasher:   h,
		Verifier: consensus.NewVerifier(h, nil),
		cells:    make(map[consensus.OutPoint]consensus.CellMeta),
		deps:     make(map[[32]byte]consensus.OutPoint),
	}
}

func (c *Context) nextOutPoint() consensus.OutPoint {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], c.nonce)
	c.nonce++
	return consensus.OutPoint{TxHash: c.Hasher.Sum256([]byte("testctx"), n[:]), Index: 0}
}

// DeployCell stores binary as the data of a fresh cell and returns its out point.
func (c *Context) DeployCell(binary []byte) consensus.OutPoint {
	p := c.CreateCell(consensus.CellOutput{Capacity: uint64(len(binary))}, binary)
	c.deps[c.Hasher.Sum256(binary)] = p
	return p
}

// BuildScript returns a data1 script pointing at the binary deployed at dep.
func (c *Context) BuildScript(dep consensus.OutPoint, args []byte) (consensus.Script, error) {
	cell, ok := c.cells[dep]
	if !ok {
		return consensus.Script{}, fmt.Errorf("testctx: no deployed cell at %s", dep)
	}
	return consensus.Script{
		CodeHash: c.Hasher.Sum256(cell.Data),
		HashType: consensus.HashTypeData1,
		Args:     append([]byte(nil), args...),
	}, nil
}

// CreateCell adds a live cell and returns its out point.
func (c *Context) CreateCell(out consensus.CellOutput, data []byte) consensus.OutPoint {
	p := c.nextOutPoint()
	c.cells[p] = consensus.CellMeta{OutPoint: p, Output: out, Data: append([]byte(nil), data...)}
	return p
}

// Cell implements consensus.CellProvider.
func (c *Context) Cell(p consensus.OutPoint) (consensus.CellMeta, bool, error) {
	cell, ok := c.cells[p]
	return cell, ok, nil
}

// CompleteTx adds a code dep for every deployed script referenced by the
// transaction's input locks and types and output types, and pads
// OutputsData to the output count.
func (c *Context) CompleteTx(tx *consensus.Transaction) *consensus.Transaction {
	have := make(map[consensus.OutPoint]struct{}, len(tx.CellDeps))
	for _, d := range tx.CellDeps {
		have[d.OutPoint] = struct{}{}
	}
	add := func(s *consensus.Script) {
		if s == nil || s.HashType == consensus.HashTypeType {
			return
		}
		p, ok := c.deps[s.CodeHash]
		if !ok {
			return
		}
		if _, dup := have[p]; dup {
			return
		}
		have[p] = struct{}{}
		tx.CellDeps = append(tx.CellDeps, consensus.CellDep{OutPoint: p, DepType: consensus.DepTypeCode})
	}
	for _, in := range tx.Inputs {
		if cell, ok := c.cells[in.PreviousOutput]; ok {
			add(&cell.Output.Lock)
			add(cell.Output.Type)
		}
	}
	for i := range tx.Outputs {
		add(tx.Outputs[i].Type)
	}
	for len(tx.OutputsData) < len(tx.Outputs) {
		tx.OutputsData = append(tx.OutputsData, nil)
	}
	return tx
}

func (c *Context) Resolve(tx *consensus.Transaction) (*consensus.ResolvedTransaction, error) {
	return consensus.Resolve(c.Hasher, tx, c)
}

// VerifyTx resolves and verifies tx with the given cycle limit.
func (c *Context) VerifyTx(tx *consensus.Transaction, maxCycles uint64) (uint64, error) {
	rtx, err := c.Resolve(tx)
	if err != nil {
		return 0, err
	}
	v := *c.Verifier
	v.MaxCycles = maxCycles
	return v.Verify(context.Background(), rtx)
}

// Commit verifies tx and, on success, consumes its inputs and adds its
// outputs as live cells.
func (c *Context) Commit(tx *consensus.Transaction, maxCycles uint64) ([]consensus.OutPoint, error) {
	if _, err := c.VerifyTx(tx, maxCycles); err != nil {
		return nil, err
	}
	for _, in := range tx.Inputs {
		delete(c.cells, in.PreviousOutput)
	}
	txHash := tx.Hash(c.Hasher)
	points := make([]consensus.OutPoint, 0, len(tx.Outputs))
	for i, out := range tx.Outputs {
		// #nosec G115 -- output counts fit uint32.
		p := consensus.OutPoint{TxHash: txHash, Index: uint32(i)}
		c.cells[p] = consensus.CellMeta{OutPoint: p, Output: out, Data: tx.OutputsData[i]}
		points = append(points, p)
	}
	return points, nil
}
