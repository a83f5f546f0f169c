package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Receipt records the outcome of an applied transaction.
type Receipt struct {
	TxHash   []byte   `cbor:"1,keyasint" json:"tx_hash"`
	Sequence uint64   `cbor:"2,keyasint" json:"sequence"`
	Cycles   uint64   `cbor:"3,keyasint" json:"cycles"`
	Consumed []string `cbor:"4,keyasint" json:"consumed"`
	Created  []string `cbor:"5,keyasint" json:"created"`
	// TypeIDs of time cells this transaction minted or moved.
	TypeIDs [][]byte `cbor:"6,keyasint,omitempty" json:"type_ids,omitempty"`
}

var (
	receiptEnc cbor.EncMode
	receiptDec cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding: the same receipt always yields the same bytes.
	receiptEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	receiptDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeReceipt(r *Receipt) ([]byte, error) {
	b, err := receiptEnc.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("receipt cbor: %w", err)
	}
	return b, nil
}

func decodeReceipt(b []byte) (*Receipt, error) {
	var r Receipt
	if err := receiptDec.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("receipt cbor: %w", err)
	}
	return &r, nil
}
