package consensus

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/u2/ckb-time-oracle/crypto"
)

const (
	typeIDLen   = 32
	lockHashLen = 32
	// TypeIDArgsLen is the args length a time cell type script carries:
	// type id followed by the required lock hash.
	TypeIDArgsLen = typeIDLen + lockHashLen
)

// TransitionView is the read-only query surface a type script sees for
// one transaction. Group queries only cover cells whose type script is the
// executing script.
type TransitionView interface {
	// GroupInputCountAtLeast reports whether the group has at least n inputs.
	GroupInputCountAtLeast(n int) bool
	GroupOutputCountAtLeast(n int) bool
	// FirstAbsoluteInput returns the serialized CellInput at position 0 of
	// the whole transaction.
	FirstAbsoluteInput() ([]byte, error)
	// OutputTypeHash returns the type script hash of output i. present is
	// false for outputs without a type script; an index past the last
	// output fails with EXIT_INDEX_OUT_OF_BOUND.
	OutputTypeHash(i int) (hash [32]byte, present bool, err error)
	GroupOutputLockHash(i int) ([32]byte, error)
	OwnArgs() ([]byte, error)
}

// ValidateTypeID runs the time cell rules against view. self is the hash of
// the executing type script. A time cell can be created (no group input,
// one group output with a derived type id) or updated (one group input,
// one group output), and its output must carry the lock bound in args;
// it can never be destroyed.
func ValidateTypeID(view TransitionView, self [32]byte, hasher crypto.HashProvider, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	args, err := view.OwnArgs()
	if err != nil {
		return err
	}
	typeID, err := argsField(args, 0, "type id", log)
	if err != nil {
		return err
	}

	if view.GroupInputCountAtLeast(2) {
		log.Debug("there can only be at most one input time cell")
		return scripterr(TYPEID_ERR_CELL_NUM, "more than one group input")
	}
	if !view.GroupOutputCountAtLeast(1) || view.GroupOutputCountAtLeast(2) {
		log.Debug("there must be exactly one output time cell")
		return scripterr(TYPEID_ERR_CELL_NUM, "group output count is not one")
	}

	if !view.GroupInputCountAtLeast(1) {
		// Minting: the type id must be derived from this transaction.
		index, err := locateFirstGovernedOutput(view, self)
		if err != nil {
			return err
		}
		firstInput, err := view.FirstAbsoluteInput()
		if err != nil {
			return err
		}
		expected := deriveTypeID(hasher, firstInput, uint64(index))
		log.Debug("derived type id",
			zap.Binary("expected", expected[:]),
			zap.Binary("type_id", typeID[:]),
			zap.Int("output_index", index))
		if expected != typeID {
			return scripterr(TYPEID_ERR_MISMATCH, "type id does not match derivation")
		}
	}

	required, err := argsField(args, typeIDLen, "lock hash", log)
	if err != nil {
		return err
	}
	lockHash, err := view.GroupOutputLockHash(0)
	if err != nil {
		return err
	}
	if lockHash != required {
		log.Debug("time cell lock differs from args", zap.Binary("lock_hash", lockHash[:]))
		return scripterr(TYPEID_ERR_LOCK, "output lock hash does not match args")
	}
	return nil
}

func argsField(args []byte, offset int, name string, log *zap.Logger) ([32]byte, error) {
	var out [32]byte
	if offset+32 > len(args) {
		log.Debug("args too short", zap.String("field", name), zap.Int("args_len", len(args)))
		return out, scripterr(TYPEID_ERR_ARGS_LEN, name+": args too short")
	}
	copy(out[:], args[offset:offset+32])
	return out, nil
}

// locateFirstGovernedOutput scans outputs from 0 for the first whose type
// script hash is self. The scan stops at the first view error, which for a
// missing match is EXIT_INDEX_OUT_OF_BOUND past the last output.
func locateFirstGovernedOutput(view TransitionView, self [32]byte) (int, error) {
	for i := 0; ; i++ {
		h, present, err := view.OutputTypeHash(i)
		if err != nil {
			return 0, err
		}
		if present && h == self {
			return i, nil
		}
	}
}

func deriveTypeID(hasher crypto.HashProvider, firstInput []byte, index uint64) [32]byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return hasher.Sum256(firstInput, idx[:])
}

// DeriveTypeID computes the type id a mint must declare when its time cell
// is output outputIndex and firstInput is the transaction's first input.
func DeriveTypeID(hasher crypto.HashProvider, firstInput CellInput, outputIndex uint64) [32]byte {
	return deriveTypeID(hasher, firstInput.Serialize(), outputIndex)
}

// TypeIDArgs builds time cell type script args.
func TypeIDArgs(typeID, lockHash [32]byte) []byte {
	out := make([]byte, 0, TypeIDArgsLen)
	out = append(out, typeID[:]...)
	return append(out, lockHash[:]...)
}

// TypeIDFromArgs returns the type id carried by time cell args.
func TypeIDFromArgs(args []byte) ([32]byte, bool) {
	var out [32]byte
	if len(args) < typeIDLen {
		return out, false
	}
	copy(out[:], args[:typeIDLen])
	return out, true
}
