package store

import (
	"fmt"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"

	bolt "go.etcd.io/bbolt"
)

// Genesis output layout: the built-in program cells come first, then the
// funding cells in the order given to InitGenesis.
const (
	genesisAlwaysSuccessIndex uint32 = 0
	genesisAlwaysFailureIndex uint32 = 1
	genesisTimeCellIndex      uint32 = 2
	genesisFundingIndex       uint32 = 3
)

// Genesis names the cells created by InitGenesis.
type Genesis struct {
	TxHash        [32]byte
	AlwaysSuccess consensus.OutPoint
	AlwaysFailure consensus.OutPoint
	TimeCell      consensus.OutPoint
	Funding       []consensus.OutPoint
}

func genesisFrom(txHash [32]byte, funding uint32) *Genesis {
	g := &Genesis{
		TxHash:        txHash,
		AlwaysSuccess: consensus.OutPoint{TxHash: txHash, Index: genesisAlwaysSuccessIndex},
		AlwaysFailure: consensus.OutPoint{TxHash: txHash, Index: genesisAlwaysFailureIndex},
		TimeCell:      consensus.OutPoint{TxHash: txHash, Index: genesisTimeCellIndex},
	}
	for i := uint32(0); i < funding; i++ {
		g.Funding = append(g.Funding, consensus.OutPoint{TxHash: txHash, Index: genesisFundingIndex + i})
	}
	return g
}

// CellDeps returns code deps for every built-in program.
func (g *Genesis) CellDeps() []consensus.CellDep {
	return []consensus.CellDep{
		{OutPoint: g.AlwaysSuccess, DepType: consensus.DepTypeCode},
		{OutPoint: g.AlwaysFailure, DepType: consensus.DepTypeCode},
		{OutPoint: g.TimeCell, DepType: consensus.DepTypeCode},
	}
}

// AlwaysSuccessLock returns a lock anyone can unlock; args only vary its hash.
func AlwaysSuccessLock(h crypto.HashProvider, args []byte) consensus.Script {
	return consensus.Script{
		CodeHash: h.Sum256(consensus.AlwaysSuccessBinary),
		HashType: consensus.HashTypeData1,
		Args:     append([]byte(nil), args...),
	}
}

// TimeCellCodeHash is the data hash of the time cell program.
func TimeCellCodeHash(h crypto.HashProvider) [32]byte {
	return h.Sum256(consensus.TimeCellBinary)
}

// InitGenesis initializes an empty store with the built-in program cells
// and the given funding cells. Program cells are locked with the always
// failure lock and can never be spent.
func (d *DB) InitGenesis(funding []consensus.CellOutput) (*Genesis, error) {
	if d == nil {
		return nil, fmt.Errorf("db: nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manifest != nil {
		return nil, fmt.Errorf("store already initialized (manifest exists)")
	}
	if len(funding) > 0xffff {
		return nil, fmt.Errorf("too many funding cells: %d", len(funding))
	}

	frozen := consensus.Script{
		CodeHash: d.hasher.Sum256(consensus.AlwaysFailureBinary),
		HashType: consensus.HashTypeData1,
	}
	tx := &consensus.Transaction{}
	for _, bin := range [][]byte{consensus.AlwaysSuccessBinary, consensus.AlwaysFailureBinary, consensus.TimeCellBinary} {
		tx.Outputs = append(tx.Outputs, consensus.CellOutput{Capacity: uint64(len(bin)), Lock: frozen})
		tx.OutputsData = append(tx.OutputsData, bin)
	}
	for _, out := range funding {
		tx.Outputs = append(tx.Outputs, out)
		tx.OutputsData = append(tx.OutputsData, nil)
	}
	txHash := tx.Hash(d.hasher)

	if err := d.db.Update(func(btx *bolt.Tx) error {
		cells := btx.Bucket(bucketCells)
		for i, out := range tx.Outputs {
			point := consensus.OutPoint{TxHash: txHash, Index: uint32(i)} // #nosec G115 -- output count bounded above.
			val, err := encodeCell(consensus.CellMeta{OutPoint: point, Output: out, Data: tx.OutputsData[i]})
			if err != nil {
				return err
			}
			if err := cells.Put(encodeOutPointKey(point), val); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	m := &Manifest{
		SchemaVersion:       SchemaVersionV1,
		HashProvider:        d.hasher.Name(),
		GenesisTxHashHex:    hex32(txHash),
		GenesisFundingCells: uint32(len(funding)), // #nosec G115 -- bounded above.
	}
	if err := d.setManifest(m); err != nil {
		return nil, err
	}
	return genesisFrom(txHash, m.GenesisFundingCells), nil
}

// Genesis returns the genesis cells of an initialized store.
func (d *DB) Genesis() (*Genesis, error) {
	m := d.Manifest()
	if m == nil {
		return nil, ErrNotInitialized
	}
	txHash, err := parseHex32(m.GenesisTxHashHex)
	if err != nil {
		return nil, fmt.Errorf("manifest genesis_tx_hash: %w", err)
	}
	return genesisFrom(txHash, m.GenesisFundingCells), nil
}
