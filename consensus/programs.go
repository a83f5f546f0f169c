package consensus

import (
	"errors"

	"go.uber.org/zap"

	"github.com/u2/ckb-time-oracle/crypto"
)

// ScriptContext is everything a program may consult during one group run.
type ScriptContext struct {
	View   *GroupView
	Group  *ScriptGroup
	Hasher crypto.HashProvider
	Logger *zap.Logger
}

// Program is the logic behind a deployed script binary. A nil return is
// exit code 0; a *ScriptError carries the exit code.
type Program interface {
	Run(sc *ScriptContext) error
}

type ProgramFunc func(sc *ScriptContext) error

func (f ProgramFunc) Run(sc *ScriptContext) error { return f(sc) }

// Binaries of the built-in programs, as they appear in deployed cell data.
var (
	AlwaysSuccessBinary = []byte("timecell/always-success/v1")
	AlwaysFailureBinary = []byte("timecell/always-failure/v1")
	TimeCellBinary      = []byte("timecell/type-id/v1")
)

var AlwaysSuccess Program = ProgramFunc(func(*ScriptContext) error { return nil })

var AlwaysFailure Program = ProgramFunc(func(*ScriptContext) error {
	return scripterr(EXIT_SCRIPT_FAILURE, "always failure")
})

// TimeCell is the type id singleton program.
var TimeCell Program = ProgramFunc(func(sc *ScriptContext) error {
	if sc.Group.Kind != GroupKindType {
		return scripterr(EXIT_SCRIPT_FAILURE, "time cell must run as a type script")
	}
	return ValidateTypeID(sc.View, sc.Group.Hash, sc.Hasher, sc.Logger)
})

// Registry maps a deployed binary's data hash to its program.
type Registry struct {
	hasher   crypto.HashProvider
	programs map[[32]byte]Program
}

func NewRegistry(hasher crypto.HashProvider) *Registry {
	return &Registry{hasher: hasher, programs: make(map[[32]byte]Program)}
}

// DefaultRegistry knows the built-in programs.
func DefaultRegistry(hasher crypto.HashProvider) *Registry {
	r := NewRegistry(hasher)
	r.Register(AlwaysSuccessBinary, AlwaysSuccess)
	r.Register(AlwaysFailureBinary, AlwaysFailure)
	r.Register(TimeCellBinary, TimeCell)
	return r
}

// Register binds binary to p and returns the binary's data hash.
func (r *Registry) Register(binary []byte, p Program) [32]byte {
	h := r.hasher.Sum256(binary)
	r.programs[h] = p
	return h
}

func (r *Registry) Lookup(dataHash [32]byte) (Program, bool) {
	p, ok := r.programs[dataHash]
	return p, ok
}

var errScriptNotFound = errors.New("script code not found in cell deps")

// ResolveBinary finds the deployed binary s runs among the transaction's
// dep cells and returns its data hash. data* hash types match the dep's
// data hash; type matches the dep's type script hash. Only binaries with a
// registered program count.
func (r *Registry) ResolveBinary(s Script, deps []CellMeta) ([32]byte, bool) {
	for _, dep := range deps {
		dataHash := r.hasher.Sum256(dep.Data)
		switch s.HashType {
		case HashTypeData, HashTypeData1, HashTypeData2:
			if dataHash != s.CodeHash {
				continue
			}
		case HashTypeType:
			th, ok := dep.Output.TypeHash(r.hasher)
			if !ok || th != s.CodeHash {
				continue
			}
		default:
			continue
		}
		if _, ok := r.programs[dataHash]; ok {
			return dataHash, true
		}
	}
	return [32]byte{}, false
}

func (r *Registry) resolve(s Script, deps []CellMeta) (Program, error) {
	h, ok := r.ResolveBinary(s, deps)
	if !ok {
		return nil, errScriptNotFound
	}
	return r.programs[h], nil
}
