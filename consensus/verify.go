package consensus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/u2/ckb-time-oracle/crypto"
)

// DefaultMaxCycles bounds a whole transaction's script execution.
const DefaultMaxCycles uint64 = 10_000_000

// Verifier runs every script group of a resolved transaction.
type Verifier struct {
	Hasher    crypto.HashProvider
	Registry  *Registry
	MaxCycles uint64
	Logger    *zap.Logger
}

// NewVerifier returns a verifier with the built-in programs registered.
func NewVerifier(hasher crypto.HashProvider, log *zap.Logger) *Verifier {
	if hasher == nil {
		hasher = crypto.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		Hasher:    hasher,
		Registry:  DefaultRegistry(hasher),
		MaxCycles: DefaultMaxCycles,
		Logger:    log,
	}
}

// Verify returns the cycles consumed, or the first failing group's error.
// Groups run in the order CollectGroups yields them; ctx is checked
// between groups.
func (v *Verifier) Verify(ctx context.Context, rtx *ResolvedTransaction) (uint64, error) {
	if rtx == nil {
		return 0, txerr(TX_ERR_PARSE, "nil resolved tx")
	}
	if err := rtx.Tx.Validate(); err != nil {
		return 0, err
	}
	if len(rtx.Inputs) != len(rtx.Tx.Inputs) {
		return 0, txerr(TX_ERR_MISSING_CELL, "unresolved inputs")
	}
	log := v.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxCycles := v.MaxCycles
	if maxCycles == 0 {
		maxCycles = DefaultMaxCycles
	}

	var total uint64
	for _, g := range CollectGroups(rtx, v.Hasher) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		glog := log.With(
			zap.Stringer("group", g.Kind),
			zap.String("script_hash", hex.EncodeToString(g.Hash[:])))

		prog, err := v.Registry.resolve(g.Script, rtx.CellDeps)
		if err != nil {
			return total, &TxError{
				Code: TX_ERR_SCRIPT_NOT_FOUND,
				Msg:  fmt.Sprintf("%s script %x", g.Kind, g.Hash),
				Err:  err,
			}
		}

		view := NewGroupView(rtx, g, v.Hasher)
		runErr := prog.Run(&ScriptContext{View: view, Group: g, Hasher: v.Hasher, Logger: glog})
		total += ScriptBaseCycles + view.Cycles()
		if total > maxCycles {
			return total, txerr(TX_ERR_CYCLES_EXCEEDED, fmt.Sprintf("%d > %d", total, maxCycles))
		}
		if runErr != nil {
			var se *ScriptError
			if !errors.As(runErr, &se) {
				se = &ScriptError{Code: EXIT_SCRIPT_FAILURE, Msg: runErr.Error()}
			}
			glog.Debug("script rejected", zap.Int8("exit_code", int8(se.Code)), zap.Error(se))
			return total, &TxError{
				Code: TX_ERR_SCRIPT,
				Msg:  fmt.Sprintf("%s script %x exit %d", g.Kind, g.Hash, int8(se.Code)),
				Err:  se,
			}
		}
	}
	log.Debug("transaction verified",
		zap.String("tx_hash", hex.EncodeToString(rtx.Hash[:])),
		zap.Uint64("cycles", total))
	return total, nil
}
