package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sslScope/internal/chain"
	"sslScope/internal/config"
	"sslScope/internal/dex"
	"sslScope/internal/metrics"
	"sslScope/internal/storage/postgres"
	"sslScope/internal/subgraph"
	"sslScope/internal/ticks"
)

// wiring opens the configured sources on first use and closes them together.
type wiring struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	chain    *chain.Client
	pools    *dex.PoolReader
	subgraph *subgraph.Client
	store    *postgres.Store
}

func newWiring(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *wiring {
	return &wiring{cfg: cfg, logger: logger, metrics: m}
}

func (w *wiring) Close() {
	if w.chain != nil {
		w.chain.Close()
	}
	if w.store != nil {
		w.store.Close()
	}
}

func (w *wiring) chainClient(ctx context.Context) (*chain.Client, error) {
	if w.chain != nil {
		return w.chain, nil
	}
	if w.cfg.Network.RPCEndpoint == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, w.cfg.Network.RPCEndpoint, chain.Options{
		MaxRetries:   w.cfg.MaxRetries,
		RetryBackoff: w.cfg.RetryBackoff,
		CallTimeout:  w.cfg.CallTimeout,
		Metrics:      w.metrics,
		Logger:       w.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	if err := client.CheckChainID(ctx, w.cfg.Network.ChainID); err != nil {
		client.Close()
		return nil, err
	}
	w.chain = client
	return client, nil
}

func (w *wiring) subgraphClient() (*subgraph.Client, error) {
	if w.subgraph != nil {
		return w.subgraph, nil
	}
	client, err := subgraph.NewClient(w.cfg.Network.SubgraphEndpoint, subgraph.Options{Logger: w.logger})
	if err != nil {
		return nil, err
	}
	w.subgraph = client
	return client, nil
}

func (w *wiring) postgresStore(ctx context.Context) (*postgres.Store, error) {
	if w.store != nil {
		return w.store, nil
	}
	store, err := postgres.NewStore(ctx, w.cfg.PGDSN, w.cfg.Network.ChainID)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	w.store = store
	return store, nil
}

func (w *wiring) chainPoolReader(ctx context.Context) (*dex.PoolReader, error) {
	if w.pools != nil {
		return w.pools, nil
	}
	client, err := w.chainClient(ctx)
	if err != nil {
		return nil, err
	}
	w.pools = dex.NewPoolReader(client, w.logger)
	return w.pools, nil
}

func (w *wiring) chainTickReader(ctx context.Context) (*dex.TickLensReader, error) {
	lens, err := dex.ParseAddress(w.cfg.TickLens)
	if err != nil {
		return nil, fmt.Errorf("tick lens: %w", err)
	}
	client, err := w.chainClient(ctx)
	if err != nil {
		return nil, err
	}
	return dex.NewTickLensReader(client, lens, 0, w.logger), nil
}

func (w *wiring) poolReader(ctx context.Context) (ticks.PoolReader, error) {
	if w.cfg.PoolSource == config.SourceSubgraph {
		return w.subgraphClient()
	}
	return w.chainPoolReader(ctx)
}

func (w *wiring) tickReader(ctx context.Context) (ticks.TickReader, error) {
	switch w.cfg.TickSource {
	case config.SourceSubgraph:
		return w.subgraphClient()
	case config.SourcePostgres:
		return w.postgresStore(ctx)
	default:
		return w.chainTickReader(ctx)
	}
}

func (w *wiring) vaultReader(ctx context.Context) (*dex.VaultReader, error) {
	client, err := w.chainClient(ctx)
	if err != nil {
		return nil, err
	}
	return dex.NewVaultReader(client), nil
}

func (w *wiring) fetcher(ctx context.Context) (*ticks.Fetcher, ticks.PoolReader, error) {
	pools, err := w.poolReader(ctx)
	if err != nil {
		return nil, nil, err
	}
	tickReader, err := w.tickReader(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ticks.NewFetcher(pools, tickReader, w.metrics, w.logger), pools, nil
}
