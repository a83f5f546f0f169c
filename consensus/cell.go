package consensus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/u2/ckb-time-oracle/crypto"
)

// ScriptHashType says how a script's CodeHash is matched against cell deps.
type ScriptHashType byte

const (
	HashTypeData  ScriptHashType = 0
	HashTypeType  ScriptHashType = 1
	HashTypeData1 ScriptHashType = 2
	HashTypeData2 ScriptHashType = 4
)

func (h ScriptHashType) String() string {
	switch h {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	case HashTypeData2:
		return "data2"
	default:
		return fmt.Sprintf("hash_type(%d)", byte(h))
	}
}

func (h ScriptHashType) Valid() bool {
	switch h {
	case HashTypeData, HashTypeType, HashTypeData1, HashTypeData2:
		return true
	}
	return false
}

func ParseScriptHashType(s string) (ScriptHashType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data":
		return HashTypeData, nil
	case "type":
		return HashTypeType, nil
	case "data1":
		return HashTypeData1, nil
	case "data2":
		return HashTypeData2, nil
	}
	return 0, fmt.Errorf("unknown hash_type %q", s)
}

type Script struct {
	CodeHash [32]byte
	HashType ScriptHashType
	Args     []byte
}

// Serialize returns the molecule table encoding of s.
func (s Script) Serialize() []byte {
	return serializeTable(
		s.CodeHash[:],
		[]byte{byte(s.HashType)},
		serializeBytes(s.Args),
	)
}

// Hash is the script hash: the identity cells are grouped by.
func (s Script) Hash(p crypto.HashProvider) [32]byte {
	return p.Sum256(s.Serialize())
}

func (s Script) Equal(o Script) bool {
	return s.CodeHash == o.CodeHash && s.HashType == o.HashType && bytes.Equal(s.Args, o.Args)
}

type OutPoint struct {
	TxHash [32]byte
	Index  uint32
}

func (o OutPoint) Serialize() []byte {
	b := make([]byte, 0, outPointSize)
	b = append(b, o.TxHash[:]...)
	return appendU32le(b, o.Index)
}

// String renders the out point as "0x<tx_hash>:<index>".
func (o OutPoint) String() string {
	return "0x" + hex.EncodeToString(o.TxHash[:]) + ":" + strconv.FormatUint(uint64(o.Index), 10)
}

func ParseOutPoint(s string) (OutPoint, error) {
	hashPart, idxPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return OutPoint{}, fmt.Errorf("out point %q: want <tx_hash>:<index>", s)
	}
	h, err := parseHash32(hashPart)
	if err != nil {
		return OutPoint{}, fmt.Errorf("out point tx_hash: %w", err)
	}
	idx, err := strconv.ParseUint(idxPart, 10, 32)
	if err != nil {
		return OutPoint{}, fmt.Errorf("out point index: %w", err)
	}
	return OutPoint{TxHash: h, Index: uint32(idx)}, nil
}

type CellInput struct {
	Since          uint64
	PreviousOutput OutPoint
}

// Serialize returns the 44-byte struct encoding: since || out point.
func (in CellInput) Serialize() []byte {
	b := make([]byte, 0, cellInputSize)
	b = appendU64le(b, in.Since)
	b = append(b, in.PreviousOutput.TxHash[:]...)
	return appendU32le(b, in.PreviousOutput.Index)
}

type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

func (o CellOutput) Serialize() []byte {
	var typ []byte
	if o.Type != nil {
		typ = o.Type.Serialize()
	}
	return serializeTable(
		appendU64le(nil, o.Capacity),
		o.Lock.Serialize(),
		typ,
	)
}

// TypeHash returns the type script hash, or ok=false when the cell has no type script.
func (o CellOutput) TypeHash(p crypto.HashProvider) (h [32]byte, ok bool) {
	if o.Type == nil {
		return h, false
	}
	return o.Type.Hash(p), true
}

type DepType byte

const (
	DepTypeCode     DepType = 0
	DepTypeDepGroup DepType = 1
)

func (d DepType) String() string {
	switch d {
	case DepTypeCode:
		return "code"
	case DepTypeDepGroup:
		return "dep_group"
	default:
		return fmt.Sprintf("dep_type(%d)", byte(d))
	}
}

func ParseDepType(s string) (DepType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code":
		return DepTypeCode, nil
	case "dep_group", "depgroup":
		return DepTypeDepGroup, nil
	}
	return 0, fmt.Errorf("unknown dep_type %q", s)
}

type CellDep struct {
	OutPoint OutPoint
	DepType  DepType
}

func (d CellDep) Serialize() []byte {
	return append(d.OutPoint.Serialize(), byte(d.DepType))
}

// CellMeta is a live cell together with the out point that created it.
type CellMeta struct {
	OutPoint OutPoint
	Output   CellOutput
	Data     []byte
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := decodeHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}
	return b, nil
}
