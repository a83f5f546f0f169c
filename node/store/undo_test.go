package store

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/u2/ckb-time-oracle/consensus"
)

func TestUndoRecord_RoundTrip(t *testing.T) {
	var txHash [32]byte
	txHash[0] = 9
	p := consensus.OutPoint{TxHash: txHash, Index: 1}
	var prev [32]byte
	prev[31] = 7

	u := UndoRecord{
		PrevLastTxHashHex: hex32(prev),
		Spent: []consensus.CellMeta{{
			OutPoint: p,
			Output: consensus.CellOutput{
				Capacity: 1,
				Lock:     consensus.Script{HashType: consensus.HashTypeData1, Args: []byte{0x05}},
			},
			Data: []byte{0x06},
		}},
		Created: []consensus.OutPoint{p},
		TypeIDs: []TypeIDUndo{
			{TypeID: [32]byte{1}},
			{TypeID: [32]byte{2}, Prev: &p},
		},
	}

	b, err := encodeUndoRecord(u)
	if err != nil {
		t.Fatalf("encodeUndoRecord: %v", err)
	}
	got, err := decodeUndoRecord(b)
	if err != nil {
		t.Fatalf("decodeUndoRecord: %v", err)
	}
	if diff := cmp.Diff(&u, got); diff != "" {
		t.Fatalf("undo mismatch (-want +got):\n%s", diff)
	}

	// Trailing bytes should be rejected.
	bad := append(append([]byte(nil), b...), 0x00)
	if _, err := decodeUndoRecord(bad); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
	// Truncated should be rejected.
	if _, err := decodeUndoRecord(b[:len(b)-1]); err == nil {
		t.Fatalf("expected truncated error")
	}
	// Ensure stable encoding for the same input.
	b2, err := encodeUndoRecord(u)
	if err != nil {
		t.Fatalf("encodeUndoRecord(2): %v", err)
	}
	if !bytes.Equal(b, b2) {
		t.Fatalf("non-deterministic encoding")
	}
}

func TestUndoRecord_NoPrev(t *testing.T) {
	b, err := encodeUndoRecord(UndoRecord{})
	if err != nil {
		t.Fatalf("encodeUndoRecord: %v", err)
	}
	got, err := decodeUndoRecord(b)
	if err != nil {
		t.Fatalf("decodeUndoRecord: %v", err)
	}
	if got.PrevLastTxHashHex != "" || len(got.Spent) != 0 || len(got.Created) != 0 || len(got.TypeIDs) != 0 {
		t.Fatalf("unexpected decoded undo: %+v", got)
	}
	b[0] = 2
	if _, err := decodeUndoRecord(b); err == nil {
		t.Fatalf("expected bad flag error")
	}
}
