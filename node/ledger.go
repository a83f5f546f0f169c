package node

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/node/store"
)

// Ledger applies transactions to the live cell store and answers time
// cell queries.
type Ledger struct {
	db       *store.DB
	verifier *consensus.Verifier
	log      *zap.Logger
}

// OpenLedger opens the store under cfg.DataDir with the configured hash
// provider and cycle budget.
func OpenLedger(cfg Config, log *zap.Logger) (*Ledger, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DataDir, hasher)
	if err != nil {
		return nil, err
	}
	v := consensus.NewVerifier(hasher, log.Named("verifier"))
	v.MaxCycles = cfg.MaxCycles
	return &Ledger{db: db, verifier: v, log: log}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Store() *store.DB { return l.db }

func (l *Ledger) Verifier() *consensus.Verifier { return l.verifier }

// Init creates the genesis cells: the built-in programs plus count funding
// cells of the given capacity, each locked with the always-success lock.
func (l *Ledger) Init(count int, capacity uint64) (*store.Genesis, error) {
	if count < 0 {
		return nil, fmt.Errorf("funding count must be >= 0")
	}
	lock := store.AlwaysSuccessLock(l.db.Hasher(), nil)
	funding := make([]consensus.CellOutput, count)
	for i := range funding {
		funding[i] = consensus.CellOutput{Capacity: capacity, Lock: lock}
	}
	g, err := l.db.InitGenesis(funding)
	if err != nil {
		return nil, err
	}
	l.log.Info("store initialized",
		zap.String("genesis_tx_hash", hex.EncodeToString(g.TxHash[:])),
		zap.Int("funding_cells", count),
		zap.String("hash_provider", l.db.Hasher().Name()),
	)
	return g, nil
}

// Submit verifies and applies tx.
func (l *Ledger) Submit(ctx context.Context, tx *consensus.Transaction) (*store.Receipt, error) {
	r, err := l.db.ApplyTx(ctx, tx, l.verifier)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if code, ok := consensus.TxErrorCode(err); ok {
			fields = append(fields, zap.String("code", string(code)))
		}
		if exit := consensus.ExitCodeOf(err); exit != 0 {
			fields = append(fields, zap.Int8("exit_code", exit))
		}
		l.log.Warn("transaction rejected", fields...)
		return nil, err
	}
	l.log.Info("transaction applied",
		zap.String("tx_hash", hex.EncodeToString(r.TxHash)),
		zap.Uint64("sequence", r.Sequence),
		zap.Uint64("cycles", r.Cycles),
		zap.Int("consumed", len(r.Consumed)),
		zap.Int("created", len(r.Created)),
	)
	return r, nil
}

// CurrentCell returns the live time cell carrying typeID.
func (l *Ledger) CurrentCell(typeID [32]byte) (consensus.CellMeta, bool, error) {
	point, ok, err := l.db.LookupTypeID(typeID)
	if err != nil || !ok {
		return consensus.CellMeta{}, false, err
	}
	cell, ok, err := l.db.GetCell(point)
	if err != nil {
		return consensus.CellMeta{}, false, err
	}
	if !ok {
		return consensus.CellMeta{}, false, fmt.Errorf("type id %x indexed at %s but cell is not live", typeID, point)
	}
	return cell, true, nil
}

// Mint spends funding to create a new time cell locked by lock and returns
// its type id.
func (l *Ledger) Mint(ctx context.Context, funding consensus.OutPoint, lock consensus.Script, data []byte) ([32]byte, *store.Receipt, error) {
	g, err := l.db.Genesis()
	if err != nil {
		return [32]byte{}, nil, err
	}
	fundingCell, ok, err := l.db.GetCell(funding)
	if err != nil {
		return [32]byte{}, nil, err
	}
	if !ok {
		return [32]byte{}, nil, &consensus.TxError{Code: consensus.TX_ERR_MISSING_CELL, Msg: "funding " + funding.String()}
	}
	tx, typeID, err := consensus.BuildMintTx(l.db.Hasher(), consensus.MintRequest{
		Funding:  funding,
		Lock:     lock,
		CodeHash: store.TimeCellCodeHash(l.db.Hasher()),
		HashType: consensus.HashTypeData1,
		CellDeps: g.CellDeps(),
		Capacity: fundingCell.Output.Capacity,
		Data:     data,
	})
	if err != nil {
		return [32]byte{}, nil, err
	}
	r, err := l.Submit(ctx, tx)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return typeID, r, nil
}

// Update replaces the data of the live time cell carrying typeID.
func (l *Ledger) Update(ctx context.Context, typeID [32]byte, data []byte) (*store.Receipt, error) {
	g, err := l.db.Genesis()
	if err != nil {
		return nil, err
	}
	current, ok, err := l.CurrentCell(typeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("type id %x has no live cell", typeID)
	}
	tx, err := consensus.BuildUpdateTx(current, g.CellDeps(), data)
	if err != nil {
		return nil, err
	}
	return l.Submit(ctx, tx)
}

// Rollback reverses the last applied transaction.
func (l *Ledger) Rollback() ([32]byte, error) {
	h, err := l.db.Rollback()
	if err != nil {
		return h, err
	}
	l.log.Info("transaction rolled back", zap.String("tx_hash", hex.EncodeToString(h[:])))
	return h, nil
}
