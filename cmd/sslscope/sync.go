package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sslScope/internal/dex"
	"sslScope/internal/ticks"
	"sslScope/internal/v3math"
)

func runSyncTicks(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	pools, err := dex.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWiring(cfg, logger, nil)
	defer w.Close()

	reader, err := w.chainPoolReader(ctx)
	if err != nil {
		return err
	}
	lens, err := w.chainTickReader(ctx)
	if err != nil {
		return err
	}
	store, err := w.postgresStore(ctx)
	if err != nil {
		return err
	}

	for _, pool := range pools {
		start := time.Now()
		state, err := reader.PoolState(ctx, pool)
		if err != nil {
			return fmt.Errorf("pool %s: read state: %w", pool.Hex(), err)
		}
		if state.TickSpacing <= 0 {
			spacing, ok := v3math.TickSpacingForFee(state.FeeTier)
			if !ok {
				return fmt.Errorf("pool %s: unknown fee tier %d", pool.Hex(), state.FeeTier)
			}
			state.TickSpacing = spacing
		}

		q := ticks.Window(state, cfg.Ticks)
		initialized, err := lens.InitializedTicks(ctx, q)
		if err != nil {
			return fmt.Errorf("pool %s: read ticks: %w", pool.Hex(), err)
		}
		if err := store.SyncWindow(ctx, q, initialized); err != nil {
			return fmt.Errorf("pool %s: store ticks: %w", pool.Hex(), err)
		}

		logger.Info("tick window synced",
			zap.String("pool", pool.Hex()),
			zap.Int32("lower", q.Lower),
			zap.Int32("upper", q.Upper),
			zap.Uint64("block", q.BlockNumber),
			zap.Int("ticks", len(initialized)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}
