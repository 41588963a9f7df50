package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func runPools(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	first, _ := cmd.Flags().GetInt("first")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newWiring(cfg, logger, nil).subgraphClient()
	if err != nil {
		return err
	}
	pools, err := client.TopPools(ctx, first)
	if err != nil {
		return fmt.Errorf("top pools: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tPAIR\tFEE\tTVL")
	for _, p := range pools {
		fmt.Fprintf(tw, "%s\t%s/%s\t%.2f%%\t%s\n",
			p.ID, p.Token0.Symbol, p.Token1.Symbol, float64(p.FeeTier)/1e4, p.TVLUSD)
	}
	return tw.Flush()
}
