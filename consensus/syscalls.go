package consensus

import (
	"fmt"

	"github.com/u2/ckb-time-oracle/crypto"
)

// Source selects which cell list a loader reads from.
type Source uint8

const (
	SourceInput Source = iota + 1
	SourceOutput
	SourceCellDep
	SourceGroupInput
	SourceGroupOutput
)

func (s Source) String() string {
	switch s {
	case SourceInput:
		return "input"
	case SourceOutput:
		return "output"
	case SourceCellDep:
		return "cell_dep"
	case SourceGroupInput:
		return "group_input"
	case SourceGroupOutput:
		return "group_output"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

const (
	// SyscallCycles is charged for every loader call.
	SyscallCycles uint64 = 500
	// ScriptBaseCycles is charged once per script group run.
	ScriptBaseCycles uint64 = 1_000
)

// GroupKind tells whether a group is keyed by lock or type script hash.
type GroupKind uint8

const (
	GroupKindLock GroupKind = iota
	GroupKindType
)

func (g GroupKind) String() string {
	if g == GroupKindLock {
		return "lock"
	}
	return "type"
}

// ScriptGroup is the set of cells sharing one script hash.
type ScriptGroup struct {
	Kind          GroupKind
	Script        Script
	Hash          [32]byte
	InputIndices  []int
	OutputIndices []int
}

// GroupView answers one group's queries against a resolved transaction.
// It is owned by a single script run and is not safe for concurrent use.
type GroupView struct {
	rtx    *ResolvedTransaction
	group  *ScriptGroup
	hasher crypto.HashProvider
	cycles uint64
}

var _ TransitionView = (*GroupView)(nil)

func NewGroupView(rtx *ResolvedTransaction, group *ScriptGroup, hasher crypto.HashProvider) *GroupView {
	return &GroupView{rtx: rtx, group: group, hasher: hasher}
}

// Cycles returns the cycles charged by loader calls so far.
func (v *GroupView) Cycles() uint64 { return v.cycles }

func (v *GroupView) charge() { v.cycles += SyscallCycles }

// cell resolves (index, source) to the cell output and, for inputs, the
// absolute input position.
func (v *GroupView) cell(index int, src Source) (CellOutput, int, error) {
	tx := v.rtx.Tx
	switch src {
	case SourceInput:
		if index < 0 || index >= len(v.rtx.Inputs) {
			return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "input index")
		}
		return v.rtx.Inputs[index].Output, index, nil
	case SourceOutput:
		if index < 0 || index >= len(tx.Outputs) {
			return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "output index")
		}
		return tx.Outputs[index], index, nil
	case SourceCellDep:
		if index < 0 || index >= len(v.rtx.CellDeps) {
			return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "cell dep index")
		}
		return v.rtx.CellDeps[index].Output, -1, nil
	case SourceGroupInput:
		if index < 0 || index >= len(v.group.InputIndices) {
			return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "group input index")
		}
		abs := v.group.InputIndices[index]
		return v.rtx.Inputs[abs].Output, abs, nil
	case SourceGroupOutput:
		if index < 0 || index >= len(v.group.OutputIndices) {
			return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "group output index")
		}
		abs := v.group.OutputIndices[index]
		return tx.Outputs[abs], -1, nil
	}
	return CellOutput{}, 0, scripterr(EXIT_INDEX_OUT_OF_BOUND, "unknown source")
}

// HasCell is an existence probe; it loads nothing.
func (v *GroupView) HasCell(index int, src Source) bool {
	v.charge()
	_, _, err := v.cell(index, src)
	return err == nil
}

// LoadCellTypeHash returns the type script hash of a cell; present is
// false when the cell has no type script.
func (v *GroupView) LoadCellTypeHash(index int, src Source) ([32]byte, bool, error) {
	v.charge()
	c, _, err := v.cell(index, src)
	if err != nil {
		return [32]byte{}, false, err
	}
	h, ok := c.TypeHash(v.hasher)
	return h, ok, nil
}

func (v *GroupView) LoadCellLockHash(index int, src Source) ([32]byte, error) {
	v.charge()
	c, _, err := v.cell(index, src)
	if err != nil {
		return [32]byte{}, err
	}
	return c.Lock.Hash(v.hasher), nil
}

// LoadInput returns the serialized CellInput; only input sources carry one.
func (v *GroupView) LoadInput(index int, src Source) ([]byte, error) {
	v.charge()
	if src != SourceInput && src != SourceGroupInput {
		return nil, scripterr(EXIT_INDEX_OUT_OF_BOUND, "inputs only exist for input sources")
	}
	_, abs, err := v.cell(index, src)
	if err != nil {
		return nil, err
	}
	return v.rtx.Tx.Inputs[abs].Serialize(), nil
}

func (v *GroupView) LoadScriptArgs() ([]byte, error) {
	v.charge()
	return append([]byte(nil), v.group.Script.Args...), nil
}

func (v *GroupView) GroupInputCountAtLeast(n int) bool {
	if n <= 0 {
		return true
	}
	return v.HasCell(n-1, SourceGroupInput)
}

func (v *GroupView) GroupOutputCountAtLeast(n int) bool {
	if n <= 0 {
		return true
	}
	return v.HasCell(n-1, SourceGroupOutput)
}

func (v *GroupView) FirstAbsoluteInput() ([]byte, error) {
	return v.LoadInput(0, SourceInput)
}

func (v *GroupView) OutputTypeHash(i int) ([32]byte, bool, error) {
	return v.LoadCellTypeHash(i, SourceOutput)
}

func (v *GroupView) GroupOutputLockHash(i int) ([32]byte, error) {
	return v.LoadCellLockHash(i, SourceGroupOutput)
}

func (v *GroupView) OwnArgs() ([]byte, error) {
	return v.LoadScriptArgs()
}

// CollectGroups partitions a resolved transaction into script groups:
// lock groups ordered by first input, then type groups ordered by first
// appearance across inputs and then outputs.
func CollectGroups(rtx *ResolvedTransaction, hasher crypto.HashProvider) []*ScriptGroup {
	var groups []*ScriptGroup
	locks := make(map[[32]byte]*ScriptGroup)
	for i, in := range rtx.Inputs {
		h := in.Output.Lock.Hash(hasher)
		g, ok := locks[h]
		if !ok {
			g = &ScriptGroup{Kind: GroupKindLock, Script: in.Output.Lock, Hash: h}
			locks[h] = g
			groups = append(groups, g)
		}
		g.InputIndices = append(g.InputIndices, i)
	}

	types := make(map[[32]byte]*ScriptGroup)
	typeGroup := func(s Script) *ScriptGroup {
		h := s.Hash(hasher)
		g, ok := types[h]
		if !ok {
			g = &ScriptGroup{Kind: GroupKindType, Script: s, Hash: h}
			types[h] = g
			groups = append(groups, g)
		}
		return g
	}
	for i, in := range rtx.Inputs {
		if in.Output.Type != nil {
			g := typeGroup(*in.Output.Type)
			g.InputIndices = append(g.InputIndices, i)
		}
	}
	for i, out := range rtx.Tx.Outputs {
		if out.Type != nil {
			g := typeGroup(*out.Type)
			g.OutputIndices = append(g.OutputIndices, i)
		}
	}
	return groups
}
