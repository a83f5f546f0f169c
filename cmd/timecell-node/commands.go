package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/u2/ckb-time-oracle/consensus"
	"github.com/u2/ckb-time-oracle/node"
	"github.com/u2/ckb-time-oracle/node/store"
)

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	cfg        node.Config
	log        *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, cfg: node.DefaultConfig()}
	defaults := node.DefaultConfig()

	root := &cobra.Command{
		Use:           "timecell-node",
		Short:         "Live cell store and time cell ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	pf.StringVar(&a.cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	pf.StringVar(&a.cfg.HashAlgorithm, "hash", defaults.HashAlgorithm, "hash provider: "+strings.Join(hashNames(), "|"))
	pf.Uint64Var(&a.cfg.MaxCycles, "max-cycles", defaults.MaxCycles, "cycle budget per transaction")

	root.AddCommand(
		a.initCmd(),
		a.applyCmd(),
		a.mintCmd(),
		a.updateCmd(),
		a.cellCmd(),
		a.typeIDCmd(),
		a.typeIDsCmd(),
		a.rollbackCmd(),
		a.configCmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, TIMECELL_* env and
// explicitly set flags, in that order.
func (a *app) loadConfig(cmd *cobra.Command) error {
	flags := a.cfg
	cfg := node.DefaultConfig()
	if a.configPath != "" {
		if err := node.LoadConfigFile(a.configPath, &cfg); err != nil {
			return &configError{err}
		}
	}
	if err := node.ApplyEnv(&cfg); err != nil {
		return &configError{err}
	}
	overlayFlags(cmd.Flags(), flags, &cfg)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := node.ValidateConfig(cfg); err != nil {
		return &configError{err}
	}
	log, err := node.NewLogger(cfg.LogLevel)
	if err != nil {
		return &configError{err}
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// overlayFlags copies the flags the user set explicitly from flags into cfg.
func overlayFlags(fs *pflag.FlagSet, flags node.Config, cfg *node.Config) {
	if fs.Changed("datadir") {
		cfg.DataDir = flags.DataDir
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if fs.Changed("hash") {
		cfg.HashAlgorithm = flags.HashAlgorithm
	}
	if fs.Changed("max-cycles") {
		cfg.MaxCycles = flags.MaxCycles
	}
}

func (a *app) withLedger(fn func(ctx context.Context, l *node.Ledger) error) error {
	l, err := node.OpenLedger(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, l)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) initCmd() *cobra.Command {
	var funding int
	var capacity uint64
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the store and its genesis cells",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withLedger(func(_ context.Context, l *node.Ledger) error {
				g, err := l.Init(funding, capacity)
				if err != nil {
					return err
				}
				return a.print(genesisView{
					TxHash:        hex32(g.TxHash),
					AlwaysSuccess: g.AlwaysSuccess,
					AlwaysFailure: g.AlwaysFailure,
					TimeCell:      g.TimeCell,
					Funding:       g.Funding,
					Manifest:      l.Store().Manifest(),
				})
			})
		},
	}
	cmd.Flags().IntVar(&funding, "funding", 1, "number of funding cells")
	cmd.Flags().Uint64Var(&capacity, "capacity", 10_000, "capacity of each funding cell")
	return cmd
}

func (a *app) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <tx.json>",
		Short: "Verify and apply a JSON transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := node.ReadFileLimited(args[0])
			if err != nil {
				return err
			}
			var tx consensus.Transaction
			if err := json.Unmarshal(raw, &tx); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return a.withLedger(func(ctx context.Context, l *node.Ledger) error {
				r, err := l.Submit(ctx, &tx)
				if err != nil {
					return err
				}
				return a.print(newReceiptView(r))
			})
		},
	}
}

func (a *app) mintCmd() *cobra.Command {
	var funding, lockArgs, data string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Spend a funding cell to create a new time cell",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			point, err := consensus.ParseOutPoint(funding)
			if err != nil {
				return err
			}
			args, err := parseHex(lockArgs)
			if err != nil {
				return fmt.Errorf("lock-args: %w", err)
			}
			payload, err := parseHex(data)
			if err != nil {
				return fmt.Errorf("data: %w", err)
			}
			return a.withLedger(func(ctx context.Context, l *node.Ledger) error {
				lock := store.AlwaysSuccessLock(l.Store().Hasher(), args)
				typeID, r, err := l.Mint(ctx, point, lock, payload)
				if err != nil {
					return err
				}
				return a.print(mintView{TypeID: hex32(typeID), Receipt: newReceiptView(r)})
			})
		},
	}
	cmd.Flags().StringVar(&funding, "funding", "", "funding cell out point (0x<tx_hash>:<index>)")
	cmd.Flags().StringVar(&lockArgs, "lock-args", "", "hex args of the always-success lock guarding the cell")
	cmd.Flags().StringVar(&data, "data", "", "hex cell data")
	_ = cmd.MarkFlagRequired("funding")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "update <type_id>",
		Short: "Replace the data of a live time cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			typeID, err := parseHash(args[0])
			if err != nil {
				return err
			}
			payload, err := parseHex(data)
			if err != nil {
				return fmt.Errorf("data: %w", err)
			}
			return a.withLedger(func(ctx context.Context, l *node.Ledger) error {
				r, err := l.Update(ctx, typeID, payload)
				if err != nil {
					return err
				}
				return a.print(newReceiptView(r))
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "hex cell data")
	return cmd
}

func (a *app) cellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cell <tx_hash:index>",
		Short: "Print a live cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			point, err := consensus.ParseOutPoint(args[0])
			if err != nil {
				return err
			}
			return a.withLedger(func(_ context.Context, l *node.Ledger) error {
				cell, ok, err := l.Store().GetCell(point)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("cell %s is not live", point)
				}
				return a.print(cell)
			})
		},
	}
}

func (a *app) typeIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "typeid <type_id>",
		Short: "Print the live time cell carrying a type id",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			typeID, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return a.withLedger(func(_ context.Context, l *node.Ledger) error {
				cell, ok, err := l.CurrentCell(typeID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("type id %s has no live cell", hex32(typeID))
				}
				return a.print(cell)
			})
		},
	}
}

func (a *app) typeIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "typeids",
		Short: "List live type ids",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withLedger(func(_ context.Context, l *node.Ledger) error {
				ids, err := l.Store().TypeIDs()
				if err != nil {
					return err
				}
				out := make([]string, 0, len(ids))
				for _, id := range ids {
					out = append(out, hex32(id))
				}
				return a.print(out)
			})
		},
	}
}

func (a *app) rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Undo the most recently applied transaction",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withLedger(func(_ context.Context, l *node.Ledger) error {
				h, err := l.Rollback()
				if err != nil {
					return err
				}
				return a.print(map[string]string{"rolled_back": hex32(h)})
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.print(a.cfg)
		},
	}
}
