package store

import (
	"encoding/binary"
	"fmt"

	"github.com/u2/ckb-time-oracle/consensus"
)

func encodeOutPointKey(p consensus.OutPoint) []byte {
	// tx_hash(32) || index(u32 little-endian)
	out := make([]byte, 32+4)
	copy(out[0:32], p.TxHash[:])
	binary.LittleEndian.PutUint32(out[32:36], p.Index)
	return out
}

func decodeOutPointKey(b []byte) (consensus.OutPoint, error) {
	if len(b) != 36 {
		return consensus.OutPoint{}, fmt.Errorf("out point: expected 36 bytes, got %d", len(b))
	}
	var h [32]byte
	copy(h[:], b[0:32])
	return consensus.OutPoint{TxHash: h, Index: binary.LittleEndian.Uint32(b[32:36])}, nil
}

func encodeCell(c consensus.CellMeta) ([]byte, error) {
	output := c.Output.Serialize()
	if len(output) > 0xffffffff {
		return nil, fmt.Errorf("cell: output too large")
	}
	// Layout: output_len u32le | output (molecule CellOutput) | data
	out := make([]byte, 0, 4+len(output)+len(c.Data))
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(output))) // #nosec G115 -- bounded above.
	out = append(out, tmp4[:]...)
	out = append(out, output...)
	out = append(out, c.Data...)
	return out, nil
}

func decodeCell(point consensus.OutPoint, b []byte) (consensus.CellMeta, error) {
	if len(b) < 4 {
		return consensus.CellMeta{}, fmt.Errorf("cell: truncated")
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	if n < 0 || 4+n > len(b) {
		return consensus.CellMeta{}, fmt.Errorf("cell: bad output_len")
	}
	output, err := consensus.DecodeCellOutput(b[4 : 4+n])
	if err != nil {
		return consensus.CellMeta{}, fmt.Errorf("cell: %w", err)
	}
	return consensus.CellMeta{
		OutPoint: point,
		Output:   output,
		Data:     append([]byte(nil), b[4+n:]...),
	}, nil
}
