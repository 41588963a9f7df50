package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sslScope/internal/density"
	"sslScope/internal/dex"
	"sslScope/internal/model"
	"sslScope/internal/profile"
	"sslScope/internal/ranges"
	"sslScope/internal/storage"
)

func runDensity(cmd *cobra.Command, args []string) error {
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
	zoomIn, _ := cmd.Flags().GetInt("zoom-in")
	zoomOut, _ := cmd.Flags().GetInt("zoom-out")
	out := mustString(cmd, "out")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWiring(cfg, logger, nil)
	defer w.Close()

	fetcher, pools, err := w.fetcher(ctx)
	if err != nil {
		return err
	}
	builder, err := profile.NewBuilder(cfg.Workers, nil, logger)
	if err != nil {
		return err
	}
	defer builder.Release()

	chart := density.NewChart(fetcher, builder, density.Options{
		Pools:        pools,
		InitialTicks: cfg.Ticks,
		ZoomInterval: cfg.ZoomInterval,
		Logger:       logger,
	})
	chart.SetPool(pool)

	if asset != model.AssetNone {
		res, err := ranges.NewResolver(pools, nil, logger).ResolveDepositRange(ctx, pool, nil, asset, count)
		if err != nil {
			return err
		}
		chart.SetBounds(res.Bounds.Lower, res.Bounds.Upper)
		logger.Info("deposit range",
			zap.String("asset", res.Asset),
			zap.Int32("lower_tick", res.LowerTick),
			zap.Int32("upper_tick", res.UpperTick),
		)
	}

	if err := chart.Load(ctx); err != nil {
		return err
	}
	for i := 0; i < zoomIn; i++ {
		chart.ZoomIn()
	}
	for i := 0; i < zoomOut; i++ {
		if err := chart.ZoomOut(ctx); err != nil {
			return err
		}
	}

	data := chart.Data()
	if out != "" {
		var sink storage.Storage = storage.NewJsonlStorage(out)
		if err := sink.PutChartEntries(pool, data.Entries); err != nil {
			return err
		}
		logger.Info("chart exported",
			zap.String("pool", pool.Hex()),
			zap.Int("entries", len(data.Entries)),
			zap.String("out", out),
		)
		return nil
	}
	return printJSON(cmd, data)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
