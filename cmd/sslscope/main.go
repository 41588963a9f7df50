package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sslScope/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "sslscope",
		Short:        "Tick liquidity density and single-sided range tooling for Uniswap V3 pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve density charts, ranges and the vault status over HTTP",
		RunE:  runServe,
	}
	addSourceFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("ticks", 100, "tick-spacing steps loaded on each side of the price")
	serveCmd.Flags().Int("zoom-interval", 20, "bars added or removed per zoom step")
	serveCmd.Flags().Int("workers", 8, "profile builder workers")
	serveCmd.Flags().String("vault", config.DefaultVault, "SSL vault address (empty disables the status poller)")
	serveCmd.Flags().Duration("poll-interval", 30*time.Second, "vault status poll interval")
	root.AddCommand(serveCmd)

	densityCmd := &cobra.Command{
		Use:   "density <pool>",
		Short: "Print or export the liquidity density chart of a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runDensity,
	}
	addSourceFlags(densityCmd)
	densityCmd.Flags().Int("ticks", 100, "tick-spacing steps loaded on each side of the price")
	densityCmd.Flags().Int("zoom-interval", 20, "bars added or removed per zoom step")
	densityCmd.Flags().Int("workers", 8, "profile builder workers")
	densityCmd.Flags().Int("zoom-in", 0, "zoom-in steps applied before output")
	densityCmd.Flags().Int("zoom-out", 0, "zoom-out steps applied before output")
	densityCmd.Flags().String("asset", "", "highlight a deposit of token0 or token1")
	densityCmd.Flags().Int32("count", 10, "deposit width in tick-spacing steps")
	densityCmd.Flags().String("out", "", "append chart entries to this JSONL file instead of printing")
	root.AddCommand(densityCmd)

	rangeCmd := &cobra.Command{
		Use:   "range <pool>",
		Short: "Resolve the sqrt-price bounds of a single-sided deposit",
		Args:  cobra.ExactArgs(1),
		RunE:  runRange,
	}
	addSourceFlags(rangeCmd)
	rangeCmd.Flags().String("asset", "", "deposit asset: token0 or token1")
	rangeCmd.Flags().Int32("count", 10, "deposit width in tick-spacing steps")
	rangeCmd.Flags().String("vault", "", "use this vault's position when it has one")
	root.AddCommand(rangeCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List the top pools by TVL from the subgraph",
		RunE:  runPools,
	}
	poolsCmd.Flags().String("subgraph", config.DefaultSubgraph, "Uniswap V3 subgraph endpoint")
	poolsCmd.Flags().Int("first", 20, "number of pools")
	poolsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(poolsCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the SSL vault position and its price bounds",
		RunE:  runStatus,
	}
	addSourceFlags(statusCmd)
	statusCmd.Flags().String("vault", config.DefaultVault, "SSL vault address")
	root.AddCommand(statusCmd)

	syncCmd := &cobra.Command{
		Use:   "sync-ticks",
		Short: "Mirror initialized ticks around the price from chain into Postgres",
		RunE:  runSyncTicks,
	}
	addChainFlags(syncCmd)
	syncCmd.Flags().String("tick-lens", config.DefaultTickLens, "TickLens contract address")
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	syncCmd.Flags().StringSlice("pools", nil, "pool addresses (comma-separated)")
	syncCmd.Flags().Int("ticks", 100, "tick-spacing steps mirrored on each side of the price")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", config.DefaultRPC, "JSON-RPC endpoint")
	cmd.Flags().Uint64("chain-id", config.DefaultChainID, "expected chain id (0 skips the check)")
	cmd.Flags().Int("max-retries", 3, "extra attempts for transport errors")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Duration("call-timeout", 10*time.Second, "timeout per eth_call")
}

func addSourceFlags(cmd *cobra.Command) {
	addChainFlags(cmd)
	cmd.Flags().String("subgraph", config.DefaultSubgraph, "Uniswap V3 subgraph endpoint")
	cmd.Flags().String("pool-source", config.SourceChain, "pool state source (chain, subgraph)")
	cmd.Flags().String("tick-source", config.SourceChain, "initialized tick source (chain, subgraph, postgres)")
	cmd.Flags().String("tick-lens", config.DefaultTickLens, "TickLens contract address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres tick source")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
