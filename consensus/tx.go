package consensus

import (
	"github.com/u2/ckb-time-oracle/crypto"
)

type Transaction struct {
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  [][32]byte
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData [][]byte
	Witnesses   [][]byte
}

// SerializeRaw encodes the RawTransaction table (everything but witnesses).
func (tx *Transaction) SerializeRaw() []byte {
	deps := make([]byte, 0, len(tx.CellDeps)*cellDepSize)
	for _, d := range tx.CellDeps {
		deps = append(deps, d.Serialize()...)
	}
	headers := make([]byte, 0, len(tx.HeaderDeps)*32)
	for _, h := range tx.HeaderDeps {
		headers = append(headers, h[:]...)
	}
	inputs := make([]byte, 0, len(tx.Inputs)*cellInputSize)
	for _, in := range tx.Inputs {
		inputs = append(inputs, in.Serialize()...)
	}
	outputs := make([][]byte, 0, len(tx.Outputs))
	for _, o := range tx.Outputs {
		outputs = append(outputs, o.Serialize())
	}
	data := make([][]byte, 0, len(tx.OutputsData))
	for _, d := range tx.OutputsData {
		data = append(data, serializeBytes(d))
	}
	return serializeTable(
		appendU32le(nil, tx.Version),
		serializeFixvec(len(tx.CellDeps), deps),
		serializeFixvec(len(tx.HeaderDeps), headers),
		serializeFixvec(len(tx.Inputs), inputs),
		serializeDynvec(outputs),
		serializeDynvec(data),
	)
}

// Serialize encodes the full Transaction table, witnesses included.
func (tx *Transaction) Serialize() []byte {
	witnesses := make([][]byte, 0, len(tx.Witnesses))
	for _, w := range tx.Witnesses {
		witnesses = append(witnesses, serializeBytes(w))
	}
	return serializeTable(tx.SerializeRaw(), serializeDynvec(witnesses))
}

// Hash is the transaction hash; witnesses do not contribute.
func (tx *Transaction) Hash(p crypto.HashProvider) [32]byte {
	return p.Sum256(tx.SerializeRaw())
}

func (tx *Transaction) OutPoint(p crypto.HashProvider, index uint32) OutPoint {
	return OutPoint{TxHash: tx.Hash(p), Index: index}
}

// Validate performs the context-free structural checks.
func (tx *Transaction) Validate() error {
	if tx == nil {
		return txerr(TX_ERR_PARSE, "nil tx")
	}
	if len(tx.Inputs) == 0 {
		return txerr(TX_ERR_EMPTY_INPUTS, "transaction has no inputs")
	}
	if len(tx.OutputsData) != len(tx.Outputs) {
		return txerr(TX_ERR_OUTPUTS_DATA_MISMATCH, "outputs_data length differs from outputs")
	}
	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, dup := seen[in.PreviousOutput]; dup {
			return txerr(TX_ERR_DUPLICATE_INPUT, in.PreviousOutput.String())
		}
		seen[in.PreviousOutput] = struct{}{}
	}
	for _, o := range tx.Outputs {
		if !o.Lock.HashType.Valid() || (o.Type != nil && !o.Type.HashType.Valid()) {
			return txerr(TX_ERR_PARSE, "invalid script hash_type")
		}
	}
	return nil
}

// ResolvedTransaction pairs a transaction with the live cells it reads.
// Inputs[i] is the cell consumed by Tx.Inputs[i]; CellDeps is the
// flattened list of dep cells (dep groups expanded).
type ResolvedTransaction struct {
	Tx       *Transaction
	Hash     [32]byte
	Inputs   []CellMeta
	CellDeps []CellMeta
}

// CellProvider looks up live cells by out point.
type CellProvider interface {
	Cell(point OutPoint) (CellMeta, bool, error)
}

// Resolve looks up every input and cell dep of tx in cells. Dep group cells
// are expanded into the out points listed in their data.
func Resolve(p crypto.HashProvider, tx *Transaction, cells CellProvider) (*ResolvedTransaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	rtx := &ResolvedTransaction{
		Tx:     tx,
		Hash:   tx.Hash(p),
		Inputs: make([]CellMeta, 0, len(tx.Inputs)),
	}
	for _, in := range tx.Inputs {
		c, err := mustCell(cells, in.PreviousOutput, "input")
		if err != nil {
			return nil, err
		}
		rtx.Inputs = append(rtx.Inputs, c)
	}
	for _, dep := range tx.CellDeps {
		c, err := mustCell(cells, dep.OutPoint, "cell dep")
		if err != nil {
			return nil, err
		}
		if dep.DepType != DepTypeDepGroup {
			rtx.CellDeps = append(rtx.CellDeps, c)
			continue
		}
		points, err := DecodeOutPointVec(c.Data)
		if err != nil {
			return nil, txerr(TX_ERR_PARSE, "dep group "+dep.OutPoint.String()+": "+err.Error())
		}
		for _, point := range points {
			member, err := mustCell(cells, point, "dep group member")
			if err != nil {
				return nil, err
			}
			rtx.CellDeps = append(rtx.CellDeps, member)
		}
	}
	return rtx, nil
}

func mustCell(cells CellProvider, point OutPoint, what string) (CellMeta, error) {
	c, ok, err := cells.Cell(point)
	if err != nil {
		return CellMeta{}, err
	}
	if !ok {
		return CellMeta{}, txerr(TX_ERR_MISSING_CELL, what+" "+point.String())
	}
	return c, nil
}
