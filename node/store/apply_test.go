package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/crypto"
)

type fixture struct {
	h        crypto.HashProvider
	db       *DB
	genesis  *Genesis
	verifier *consensus.Verifier
	owner    consensus.Script
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := crypto.Default()
	db, err := Open(t.TempDir(), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	funding := consensus.CellOutput{Capacity: 1000, Lock: AlwaysSuccessLock(h, nil)}
	g, err := db.InitGenesis([]consensus.CellOutput{funding, funding})
	require.NoError(t, err)
	return &fixture{
		h:        h,
		db:       db,
		genesis:  g,
		verifier: consensus.NewVerifier(h, nil),
		owner:    AlwaysSuccessLock(h, []byte("owner")),
	}
}

func (f *fixture) mintTx(t *testing.T, funding consensus.OutPoint) (*consensus.Transaction, [32]byte) {
	t.Helper()
	tx, typeID, err := consensus.BuildMintTx(f.h, consensus.MintRequest{
		Funding:  funding,
		Lock:     f.owner,
		CodeHash: TimeCellCodeHash(f.h),
		HashType: consensus.HashTypeData1,
		CellDeps: f.genesis.CellDeps(),
		Capacity: 100,
		Data:     []byte("t0"),
	})
	require.NoError(t, err)
	return tx, typeID
}

func (f *fixture) current(t *testing.T, typeID [32]byte) consensus.CellMeta {
	t.Helper()
	point, ok, err := f.db.LookupTypeID(typeID)
	require.NoError(t, err)
	require.True(t, ok, "type id not indexed")
	cell, ok, err := f.db.GetCell(point)
	require.NoError(t, err)
	require.True(t, ok, "indexed cell not live")
	return cell
}

func TestApplyTx_MintIndexesTypeID(t *testing.T) {
	f := newFixture(t)
	tx, typeID := f.mintTx(t, f.genesis.Funding[0])

	r, err := f.db.ApplyTx(context.Background(), tx, f.verifier)
	require.NoError(t, err)
	txHash := tx.Hash(f.h)
	require.Equal(t, txHash[:], r.TxHash)
	require.Equal(t, uint64(1), r.Sequence)
	require.NotZero(t, r.Cycles)
	require.Equal(t, []string{f.genesis.Funding[0].String()}, r.Consumed)
	require.Equal(t, [][]byte{typeID[:]}, r.TypeIDs)

	cell := f.current(t, typeID)
	require.Equal(t, consensus.OutPoint{TxHash: txHash, Index: 0}, cell.OutPoint)
	require.Equal(t, []byte("t0"), cell.Data)

	_, ok, err := f.db.GetCell(f.genesis.Funding[0])
	require.NoError(t, err)
	require.False(t, ok)

	stored, ok, err := f.db.Receipt(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(r, stored); diff != "" {
		t.Fatalf("receipt mismatch (-want +got):\n%s", diff)
	}

	m := f.db.Manifest()
	require.Equal(t, uint64(1), m.AppliedTxCount)
	require.Equal(t, hex32(txHash), m.LastTxHashHex)
}

func TestApplyTx_UpdateMovesIndex(t *testing.T) {
	f := newFixture(t)
	mint, typeID := f.mintTx(t, f.genesis.Funding[0])
	_, err := f.db.ApplyTx(context.Background(), mint, f.verifier)
	require.NoError(t, err)

	prev := f.current(t, typeID)
	update, err := consensus.BuildUpdateTx(prev, f.genesis.CellDeps(), []byte("t1"))
	require.NoError(t, err)
	r, err := f.db.ApplyTx(context.Background(), update, f.verifier)
	require.NoError(t, err)
	require.Equal(t, uint64(2), r.Sequence)

	next := f.current(t, typeID)
	require.NotEqual(t, prev.OutPoint, next.OutPoint)
	require.Equal(t, []byte("t1"), next.Data)

	ids, err := f.db.TypeIDs()
	require.NoError(t, err)
	require.Equal(t, [][32]byte{typeID}, ids)

	// The consumed cell cannot be spent again.
	_, err = f.db.ApplyTx(context.Background(), update, f.verifier)
	code, ok := consensus.TxErrorCode(err)
	require.True(t, ok, "err=%v", err)
	require.Equal(t, consensus.TX_ERR_MISSING_CELL, code)
}

func TestApplyTx_RejectLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	before, err := f.db.LiveCells()
	require.NoError(t, err)

	tx, _ := f.mintTx(t, f.genesis.Funding[0])
	forged := [32]byte{0x42}
	tx.Outputs[0].Type.Args = consensus.TypeIDArgs(forged, f.owner.Hash(f.h))

	_, err = f.db.ApplyTx(context.Background(), tx, f.verifier)
	require.Error(t, err)
	require.Equal(t, int8(consensus.TYPEID_ERR_MISMATCH), consensus.ExitCodeOf(err))

	after, err := f.db.LiveCells()
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("live cells changed (-before +after):\n%s", diff)
	}
	ids, err := f.db.TypeIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, uint64(0), f.db.Manifest().AppliedTxCount)
}

func TestApplyTx_ProgramCellsAreFrozen(t *testing.T) {
	f := newFixture(t)
	tx := &consensus.Transaction{
		CellDeps:    f.genesis.CellDeps(),
		Inputs:      []consensus.CellInput{{PreviousOutput: f.genesis.AlwaysSuccess}},
		Outputs:     []consensus.CellOutput{{Capacity: 1, Lock: f.owner}},
		OutputsData: [][]byte{nil},
	}
	_, err := f.db.ApplyTx(context.Background(), tx, f.verifier)
	require.Error(t, err)
	require.Equal(t, int8(consensus.EXIT_SCRIPT_FAILURE), consensus.ExitCodeOf(err))
}

func TestApplyTx_Preconditions(t *testing.T) {
	h := crypto.Default()
	db, err := Open(t.TempDir(), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ApplyTx(context.Background(), &consensus.Transaction{}, consensus.NewVerifier(h, nil))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = db.ApplyTx(context.Background(), &consensus.Transaction{}, nil)
	require.Error(t, err)

	other, err := crypto.ProviderByName(crypto.NameCShake256)
	require.NoError(t, err)
	_, err = db.ApplyTx(context.Background(), &consensus.Transaction{}, consensus.NewVerifier(other, nil))
	require.ErrorContains(t, err, "hash provider")
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	genesisCells, err := f.db.LiveCells()
	require.NoError(t, err)

	mint, typeID := f.mintTx(t, f.genesis.Funding[1])
	_, err = f.db.ApplyTx(context.Background(), mint, f.verifier)
	require.NoError(t, err)
	minted := f.current(t, typeID)

	update, err := consensus.BuildUpdateTx(minted, f.genesis.CellDeps(), []byte("t1"))
	require.NoError(t, err)
	_, err = f.db.ApplyTx(context.Background(), update, f.verifier)
	require.NoError(t, err)

	undone, err := f.db.Rollback()
	require.NoError(t, err)
	require.Equal(t, update.Hash(f.h), undone)
	require.Equal(t, minted, f.current(t, typeID))
	_, ok, err := f.db.Receipt(undone)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.db.Rollback()
	require.NoError(t, err)
	_, ok, err = f.db.LookupTypeID(typeID)
	require.NoError(t, err)
	require.False(t, ok)
	after, err := f.db.LiveCells()
	require.NoError(t, err)
	if diff := cmp.Diff(genesisCells, after); diff != "" {
		t.Fatalf("rollback did not restore genesis (-want +got):\n%s", diff)
	}
	m := f.db.Manifest()
	require.Equal(t, uint64(0), m.AppliedTxCount)
	require.Empty(t, m.LastTxHashHex)

	_, err = f.db.Rollback()
	require.True(t, errors.Is(err, ErrNothingToRollback))
}
