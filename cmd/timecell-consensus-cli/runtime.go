package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
)

type Request struct {
	Op string `json:"op"`
	// Hash names the hash provider; empty selects the default.
	Hash string `json:"hash,omitempty"`

	Script      *consensus.Script      `json:"script,omitempty"`
	TxHex       string                 `json:"tx_hex,omitempty"`
	Tx          *consensus.Transaction `json:"tx,omitempty"`
	InputHex    string                 `json:"input_hex,omitempty"`
	OutputIndex uint64                 `json:"output_index,omitempty"`
	Cells       []consensus.CellMeta   `json:"cells,omitempty"`
	MaxCycles   uint64                 `json:"max_cycles,omitempty"`
}

type Response struct {
	Ok        bool                   `json:"ok"`
	Err       string                 `json:"err,omitempty"`
	HashHex   string                 `json:"hash,omitempty"`
	TypeIDHex string                 `json:"type_id,omitempty"`
	TxHex     string                 `json:"tx_hex,omitempty"`
	Tx        *consensus.Transaction `json:"tx,omitempty"`
	ExitCode  int8                   `json:"exit_code"`
	Cycles    uint64                 `json:"cycles,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func writeConsensusErr(w io.Writer, err error) {
	resp := Response{Ok: false, Err: err.Error(), ExitCode: consensus.ExitCodeOf(err)}
	var te *consensus.TxError
	if errors.As(err, &te) {
		resp.Err = string(te.Code)
	}
	writeResp(w, resp)
}

func parseHexStrict(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}

type cellSet map[consensus.OutPoint]consensus.CellMeta

func (c cellSet) Cell(p consensus.OutPoint) (consensus.CellMeta, bool, error) {
	cell, ok := c[p]
	return cell, ok, nil
}

func runFromStdin(r io.Reader, w io.Writer) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		writeResp(w, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}

	hasher := crypto.Default()
	if req.Hash != "" {
		p, err := crypto.ProviderByName(req.Hash)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hash"})
			return
		}
		hasher = p
	}

	switch req.Op {
	case "script_hash":
		if req.Script == nil {
			writeResp(w, Response{Ok: false, Err: "missing script"})
			return
		}
		h := req.Script.Hash(hasher)
		writeResp(w, Response{Ok: true, HashHex: hex.EncodeToString(h[:])})
		return

	case "tx_hash":
		txBytes, err := parseHexStrict(req.TxHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		tx, err := consensus.DecodeTransaction(txBytes)
		if err != nil {
			writeConsensusErr(w, err)
			return
		}
		h := tx.Hash(hasher)
		writeResp(w, Response{Ok: true, HashHex: hex.EncodeToString(h[:])})
		return

	case "decode_tx":
		txBytes, err := parseHexStrict(req.TxHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		tx, err := consensus.DecodeTransaction(txBytes)
		if err != nil {
			writeConsensusErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, Tx: tx})
		return

	case "encode_tx":
		if req.Tx == nil {
			writeResp(w, Response{Ok: false, Err: "missing tx"})
			return
		}
		h := req.Tx.Hash(hasher)
		writeResp(w, Response{
			Ok:      true,
			TxHex:   hex.EncodeToString(req.Tx.Serialize()),
			HashHex: hex.EncodeToString(h[:]),
		})
		return

	case "type_id":
		inBytes, err := parseHexStrict(req.InputHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		in, err := consensus.DecodeCellInput(inBytes)
		if err != nil {
			writeConsensusErr(w, err)
			return
		}
		id := consensus.DeriveTypeID(hasher, in, req.OutputIndex)
		writeResp(w, Response{Ok: true, TypeIDHex: hex.EncodeToString(id[:])})
		return

	case "verify_tx":
		tx := req.Tx
		if req.TxHex != "" {
			txBytes, err := parseHexStrict(req.TxHex)
			if err != nil {
				writeResp(w, Response{Ok: false, Err: "bad hex"})
				return
			}
			tx, err = consensus.DecodeTransaction(txBytes)
			if err != nil {
				writeConsensusErr(w, err)
				return
			}
		}
		if tx == nil {
			writeResp(w, Response{Ok: false, Err: "missing tx"})
			return
		}
		cells := make(cellSet, len(req.Cells))
		for _, c := range req.Cells {
			cells[c.OutPoint] = c
		}
		rtx, err := consensus.Resolve(hasher, tx, cells)
		if err != nil {
			writeConsensusErr(w, err)
			return
		}
		v := consensus.NewVerifier(hasher, nil)
		if req.MaxCycles != 0 {
			v.MaxCycles = req.MaxCycles
		}
		cycles, err := v.Verify(context.Background(), rtx)
		if err != nil {
			writeConsensusErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, Cycles: cycles})
		return

	default:
		writeResp(w, Response{Ok: false, Err: "unknown op"})
		return
	}
}
