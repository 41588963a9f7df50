package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sslScope/internal/api"
	"sslScope/internal/dex"
	"sslScope/internal/metrics"
	"sslScope/internal/profile"
	"sslScope/internal/ranges"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	w := newWiring(cfg, logger, m)
	defer w.Close()

	fetcher, pools, err := w.fetcher(ctx)
	if err != nil {
		return err
	}
	builder, err := profile.NewBuilder(cfg.Workers, m, logger)
	if err != nil {
		return err
	}
	defer builder.Release()

	opts := api.Options{
		Fetcher:      fetcher,
		Builder:      builder,
		Pools:        pools,
		Gatherer:     reg,
		InitialTicks: cfg.Ticks,
		ZoomInterval: cfg.ZoomInterval,
		Metrics:      m,
		Logger:       logger,
	}

	var vaults ranges.VaultReader
	if cfg.NeedsChain() || cfg.Vault != "" {
		vr, err := w.vaultReader(ctx)
		if err != nil {
			return err
		}
		vaults = vr
	}
	resolver := ranges.NewResolver(pools, vaults, logger)
	opts.Resolver = resolver

	if cfg.Vault != "" {
		vault, err := dex.ParseAddress(cfg.Vault)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		poller := ranges.NewPoller(resolver, vault, cfg.PollInterval, logger)
		go poller.Run(ctx)
		opts.Status = poller
	}

	if cfg.Network.SubgraphEndpoint != "" {
		sg, err := w.subgraphClient()
		if err != nil {
			return err
		}
		opts.TopPools = sg
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("listen", cfg.Listen),
			zap.String("pool_source", cfg.PoolSource),
			zap.String("tick_source", cfg.TickSource),
			zap.Uint64("chain_id", cfg.Network.ChainID),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("http server shutting down")
	return server.Shutdown(shutdownCtx)
}
