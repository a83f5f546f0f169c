package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
	"github.com/u2/ckb-time-oracle/node/store"
)

type genesisView struct {
	TxHash        string               `json:"genesis_tx_hash"`
	AlwaysSuccess consensus.OutPoint   `json:"always_success"`
	AlwaysFailure consensus.OutPoint   `json:"always_failure"`
	TimeCell      consensus.OutPoint   `json:"time_cell"`
	Funding       []consensus.OutPoint `json:"funding"`
	Manifest      *store.Manifest      `json:"manifest"`
}

type receiptView struct {
	TxHash   string   `json:"tx_hash"`
	Sequence uint64   `json:"sequence"`
	Cycles   uint64   `json:"cycles"`
	Consumed []string `json:"consumed"`
	Created  []string `json:"created"`
	TypeIDs  []string `json:"type_ids,omitempty"`
}

func newReceiptView(r *store.Receipt) receiptView {
	v := receiptView{
		TxHash:   hex.EncodeToString(r.TxHash),
		Sequence: r.Sequence,
		Cycles:   r.Cycles,
		Consumed: r.Consumed,
		Created:  r.Created,
	}
	for _, id := range r.TypeIDs {
		v.TypeIDs = append(v.TypeIDs, hex.EncodeToString(id))
	}
	return v
}

type mintView struct {
	TypeID  string      `json:"type_id"`
	Receipt receiptView `json:"receipt"`
}

func hex32(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}

func parseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := parseHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hashNames() []string { return crypto.ProviderNames() }
