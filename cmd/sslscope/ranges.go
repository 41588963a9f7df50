package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sslScope/internal/dex"
	"sslScope/internal/model"
	"sslScope/internal/ranges"
)

func runRange(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := dex.ParseAddress(args[0])
	if err != nil {
		return err
	}
	asset, err := model.ParseAsset(mustString(cmd, "asset"))
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt32("count")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWiring(cfg, logger, nil)
	defer w.Close()

	pools, err := w.poolReader(ctx)
	if err != nil {
		return err
	}

	var (
		vault  *common.Address
		vaults ranges.VaultReader
	)
	if raw := mustString(cmd, "vault"); raw != "" {
		addr, err := dex.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		vr, err := w.vaultReader(ctx)
		if err != nil {
			return err
		}
		vault, vaults = &addr, vr
	}

	res, err := ranges.NewResolver(pools, vaults, logger).ResolveDepositRange(ctx, pool, vault, asset, count)
	if err != nil {
		return err
	}
	if !res.Defined {
		logger.Warn("no asset selected and no vault position, bounds are empty", zap.String("pool", pool.Hex()))
	}
	return printJSON(cmd, res)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	vault, err := dex.ParseAddress(cfg.Vault)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWiring(cfg, logger, nil)
	defer w.Close()

	pools, err := w.poolReader(ctx)
	if err != nil {
		return err
	}
	vaults, err := w.vaultReader(ctx)
	if err != nil {
		return err
	}

	status, err := ranges.NewResolver(pools, vaults, logger).Status(ctx, vault)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "vault        %s\n", vault.Hex())
	fmt.Fprintf(out, "pool         %s\n", status.Vault.Pool.Hex())
	fmt.Fprintf(out, "pair         %s/%s\n", status.Token0.Symbol, status.Token1.Symbol)
	fmt.Fprintf(out, "ticks        [%d, %d] current %d\n", status.Vault.Lower, status.Vault.Upper, status.CurrentTick)
	fmt.Fprintf(out, "range size   %d ticks\n", status.RangeTicks)
	fmt.Fprintf(out, "in range     %t\n", status.IsInRange)
	if !status.LastRerange.IsZero() {
		fmt.Fprintf(out, "last rerange %s\n", status.LastRerange.Format("2006-01-02 15:04:05 MST"))
	}
	for _, p := range status.Prices {
		fmt.Fprintf(out, "%-12s %s (tick %d)\n", p.Label, p.Price.String(), p.Tick)
	}
	if pos := status.Vault.Position; pos.Active() {
		fmt.Fprintf(out, "liquidity    %s\n", pos.Liquidity)
	}

	// The vault owns its pool position, so the pool's own record should agree.
	client, err := w.chainClient(ctx)
	if err != nil {
		return err
	}
	poolPos, err := dex.Position(ctx, client, status.Vault.Pool, vault, status.Vault.Lower, status.Vault.Upper)
	if err != nil {
		logger.Warn("pool position read failed", zap.String("pool", status.Vault.Pool.Hex()), zap.Error(err))
		return nil
	}
	fmt.Fprintf(out, "pool record  liquidity %s owed %s/%s\n", poolPos.Liquidity, poolPos.TokensOwed0, poolPos.TokensOwed1)
	return nil
}
