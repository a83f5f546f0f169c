package consensus

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSON forms follow the CKB RPC conventions: byte strings and hashes are
// 0x-prefixed hex, integers are 0x-prefixed hex quantities, enums by name.

func hexBytes(b []byte) string { return "0x" + hex.EncodeToString(b) }

func hexUint(v uint64) string { return "0x" + strconv.FormatUint(v, 16) }

func parseHexUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("quantity %q: missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, bits)
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", s, err)
	}
	return v, nil
}

type scriptJSON struct {
	CodeHash string `json:"code_hash"`
	HashType string `json:"hash_type"`
	Args     string `json:"args"`
}

func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON{
		CodeHash: hexBytes(s.CodeHash[:]),
		HashType: s.HashType.String(),
		Args:     hexBytes(s.Args),
	})
}

func (s *Script) UnmarshalJSON(b []byte) error {
	var j scriptJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	code, err := parseHash32(j.CodeHash)
	if err != nil {
		return fmt.Errorf("script code_hash: %w", err)
	}
	ht, err := ParseScriptHashType(j.HashType)
	if err != nil {
		return err
	}
	args, err := decodeHex(j.Args)
	if err != nil {
		return fmt.Errorf("script args: %w", err)
	}
	*s = Script{CodeHash: code, HashType: ht, Args: args}
	return nil
}

type outPointJSON struct {
	TxHash string `json:"tx_hash"`
	Index  string `json:"index"`
}

func (o OutPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(outPointJSON{TxHash: hexBytes(o.TxHash[:]), Index: hexUint(uint64(o.Index))})
}

func (o *OutPoint) UnmarshalJSON(b []byte) error {
	var j outPointJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	h, err := parseHash32(j.TxHash)
	if err != nil {
		return fmt.Errorf("out point tx_hash: %w", err)
	}
	idx, err := parseHexUint(j.Index, 32)
	if err != nil {
		return fmt.Errorf("out point index: %w", err)
	}
	*o = OutPoint{TxHash: h, Index: uint32(idx)}
	return nil
}

type cellInputJSON struct {
	Since          string   `json:"since"`
	PreviousOutput OutPoint `json:"previous_output"`
}

func (in CellInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellInputJSON{Since: hexUint(in.Since), PreviousOutput: in.PreviousOutput})
}

func (in *CellInput) UnmarshalJSON(b []byte) error {
	var j cellInputJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	since, err := parseHexUint(j.Since, 64)
	if err != nil {
		return fmt.Errorf("cell input since: %w", err)
	}
	*in = CellInput{Since: since, PreviousOutput: j.PreviousOutput}
	return nil
}

type cellOutputJSON struct {
	Capacity string  `json:"capacity"`
	Lock     Script  `json:"lock"`
	Type     *Script `json:"type"`
}

func (o CellOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellOutputJSON{Capacity: hexUint(o.Capacity), Lock: o.Lock, Type: o.Type})
}

func (o *CellOutput) UnmarshalJSON(b []byte) error {
	var j cellOutputJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	capacity, err := parseHexUint(j.Capacity, 64)
	if err != nil {
		return fmt.Errorf("cell output capacity: %w", err)
	}
	*o = CellOutput{Capacity: capacity, Lock: j.Lock, Type: j.Type}
	return nil
}

type cellDepJSON struct {
	OutPoint OutPoint `json:"out_point"`
	DepType  string   `json:"dep_type"`
}

func (d CellDep) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellDepJSON{OutPoint: d.OutPoint, DepType: d.DepType.String()})
}

func (d *CellDep) UnmarshalJSON(b []byte) error {
	var j cellDepJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	dt, err := ParseDepType(j.DepType)
	if err != nil {
		return err
	}
	*d = CellDep{OutPoint: j.OutPoint, DepType: dt}
	return nil
}

type transactionJSON struct {
	Version     string       `json:"version"`
	CellDeps    []CellDep    `json:"cell_deps"`
	HeaderDeps  []string     `json:"header_deps"`
	Inputs      []CellInput  `json:"inputs"`
	Outputs     []CellOutput `json:"outputs"`
	OutputsData []string     `json:"outputs_data"`
	Witnesses   []string     `json:"witnesses"`
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	j := transactionJSON{
		Version:     hexUint(uint64(tx.Version)),
		CellDeps:    orEmpty(tx.CellDeps),
		HeaderDeps:  make([]string, 0, len(tx.HeaderDeps)),
		Inputs:      orEmpty(tx.Inputs),
		Outputs:     orEmpty(tx.Outputs),
		OutputsData: make([]string, 0, len(tx.OutputsData)),
		Witnesses:   make([]string, 0, len(tx.Witnesses)),
	}
	for _, h := range tx.HeaderDeps {
		j.HeaderDeps = append(j.HeaderDeps, hexBytes(h[:]))
	}
	for _, d := range tx.OutputsData {
		j.OutputsData = append(j.OutputsData, hexBytes(d))
	}
	for _, w := range tx.Witnesses {
		j.Witnesses = append(j.Witnesses, hexBytes(w))
	}
	return json.Marshal(j)
}

func (tx *Transaction) UnmarshalJSON(b []byte) error {
	var j transactionJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	version, err := parseHexUint(j.Version, 32)
	if err != nil {
		return fmt.Errorf("transaction version: %w", err)
	}
	out := Transaction{
		Version:  uint32(version),
		CellDeps: j.CellDeps,
		Inputs:   j.Inputs,
		Outputs:  j.Outputs,
	}
	for _, h := range j.HeaderDeps {
		v, err := parseHash32(h)
		if err != nil {
			return fmt.Errorf("header dep: %w", err)
		}
		out.HeaderDeps = append(out.HeaderDeps, v)
	}
	for _, d := range j.OutputsData {
		v, err := decodeHex(d)
		if err != nil {
			return fmt.Errorf("outputs_data: %w", err)
		}
		out.OutputsData = append(out.OutputsData, v)
	}
	for _, w := range j.Witnesses {
		v, err := decodeHex(w)
		if err != nil {
			return fmt.Errorf("witness: %w", err)
		}
		out.Witnesses = append(out.Witnesses, v)
	}
	*tx = out
	return nil
}

type cellMetaJSON struct {
	OutPoint OutPoint   `json:"out_point"`
	Output   CellOutput `json:"output"`
	Data     string     `json:"data"`
}

func (c CellMeta) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellMetaJSON{OutPoint: c.OutPoint, Output: c.Output, Data: hexBytes(c.Data)})
}

func (c *CellMeta) UnmarshalJSON(b []byte) error {
	var j cellMetaJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	data, err := decodeHex(j.Data)
	if err != nil {
		return fmt.Errorf("cell data: %w", err)
	}
	*c = CellMeta{OutPoint: j.OutPoint, Output: j.Output, Data: data}
	return nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
