package store

import (
	"encoding/binary"
	"fmt"

	"github.com/u2/ckb-time-oracle/consensus"
)

// TypeIDUndo is the type id index entry as it stood before a transaction.
// Prev is nil when the id was not indexed.
type TypeIDUndo struct {
	TypeID [32]byte
	Prev   *consensus.OutPoint
}

// UndoRecord holds what Rollback needs to reverse one applied transaction.
type UndoRecord struct {
	PrevLastTxHashHex string
	Spent             []consensus.CellMeta
	Created           []consensus.OutPoint
	TypeIDs           []TypeIDUndo
}

func encodeUndoRecord(u UndoRecord) ([]byte, error) {
	if len(u.Spent) > 0xffffffff || len(u.Created) > 0xffffffff || len(u.TypeIDs) > 0xffffffff {
		return nil, fmt.Errorf("undo: too many items")
	}
	var prev [32]byte
	hasPrev := u.PrevLastTxHashHex != ""
	if hasPrev {
		var err error
		prev, err = parseHex32(u.PrevLastTxHashHex)
		if err != nil {
			return nil, fmt.Errorf("undo: prev last tx hash: %w", err)
		}
	}

	// Layout:
	// has_prev u8 | prev_last_tx_hash 32
	// spent_count u32le
	//   (cell_len u32le | outpoint_key 36 | cell_bytes) * spent_count
	// created_count u32le
	//   (outpoint_key 36) * created_count
	// type_id_count u32le
	//   (type_id 32 | has_prev u8 | outpoint_key 36) * type_id_count
	out := make([]byte, 0, 33+4+len(u.Spent)*(4+36+128)+4+len(u.Created)*36+4+len(u.TypeIDs)*69)
	if hasPrev {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, prev[:]...)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Spent))) // #nosec G115 -- len checked against 0xffffffff above.
	out = append(out, tmp4[:]...)
	for _, c := range u.Spent {
		cellBytes, err := encodeCell(c)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(cellBytes))) // #nosec G115 -- encodeCell bounds the output length.
		out = append(out, tmp4[:]...)
		out = append(out, encodeOutPointKey(c.OutPoint)...)
		out = append(out, cellBytes...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Created))) // #nosec G115 -- len checked against 0xffffffff above.
	out = append(out, tmp4[:]...)
	for _, p := range u.Created {
		out = append(out, encodeOutPointKey(p)...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.TypeIDs))) // #nosec G115 -- len checked against 0xffffffff above.
	out = append(out, tmp4[:]...)
	for _, e := range u.TypeIDs {
		out = append(out, e.TypeID[:]...)
		if e.Prev == nil {
			out = append(out, 0)
			out = append(out, make([]byte, 36)...)
			continue
		}
		out = append(out, 1)
		out = append(out, encodeOutPointKey(*e.Prev)...)
	}
	return out, nil
}

func decodeUndoRecord(b []byte) (*UndoRecord, error) {
	if len(b) < 33+4+4+4 {
		return nil, fmt.Errorf("undo: truncated")
	}
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("undo: truncated u32")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}
	take := func(n int, what string) ([]byte, error) {
		if n < 0 || off+n > len(b) {
			return nil, fmt.Errorf("undo: truncated %s", what)
		}
		s := b[off : off+n]
		off += n
		return s, nil
	}

	u := &UndoRecord{}
	switch b[0] {
	case 0:
	case 1:
		var prev [32]byte
		copy(prev[:], b[1:33])
		u.PrevLastTxHashHex = hex32(prev)
	default:
		return nil, fmt.Errorf("undo: bad prev flag %d", b[0])
	}
	off = 33

	spentN, err := readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < spentN; i++ {
		cellLen, err := readU32()
		if err != nil {
			return nil, err
		}
		key, err := take(36, "spent outpoint")
		if err != nil {
			return nil, err
		}
		p, err := decodeOutPointKey(key)
		if err != nil {
			return nil, err
		}
		if cellLen > uint32(len(b)-off) { // #nosec G115 -- len(b)-off is non-negative (checked by prior offset bounds); fits u32.
			return nil, fmt.Errorf("undo: truncated cell bytes")
		}
		cellBytes, _ := take(int(cellLen), "cell bytes")
		c, err := decodeCell(p, cellBytes)
		if err != nil {
			return nil, err
		}
		u.Spent = append(u.Spent, c)
	}

	createdN, err := readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < createdN; i++ {
		key, err := take(36, "created outpoint")
		if err != nil {
			return nil, err
		}
		p, err := decodeOutPointKey(key)
		if err != nil {
			return nil, err
		}
		u.Created = append(u.Created, p)
	}

	idsN, err := readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < idsN; i++ {
		entry, err := take(32+1+36, "type id entry")
		if err != nil {
			return nil, err
		}
		var e TypeIDUndo
		copy(e.TypeID[:], entry[0:32])
		switch entry[32] {
		case 0:
		case 1:
			p, err := decodeOutPointKey(entry[33:69])
			if err != nil {
				return nil, err
			}
			e.Prev = &p
		default:
			return nil, fmt.Errorf("undo: bad type id flag %d", entry[32])
		}
		u.TypeIDs = append(u.TypeIDs, e)
	}
	if off != len(b) {
		return nil, fmt.Errorf("undo: trailing bytes")
	}
	return u, nil
}
