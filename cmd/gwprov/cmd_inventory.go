package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gwprov/internal/collect"
	"gwprov/internal/inventory"
	"gwprov/internal/logging"
)

var (
	inventoryGateways []string
	inventoryParallel int
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Report IMEI, ICCID, phone number, carrier and status for every port",
	Long: `Scrapes each gateway (all configured gateways by default) and writes
GW_Inventory_<date>.txt and .json under the output directory, plus an
errors log when a gateway could not be read. Gateways run concurrently,
each in its own browser context.`,
	RunE: runInventory,
}

func init() {
	inventoryCmd.Flags().StringSliceVarP(&inventoryGateways, "gateway", "g", nil, "Gateway IDs (default: all configured)")
	inventoryCmd.Flags().IntVarP(&inventoryParallel, "parallel", "p", 0, "Gateways scraped at once (default inventory.parallel)")
}

func runInventory(cmd *cobra.Command, args []string) error {
	ids := inventoryGateways
	if len(ids) == 0 {
		ids = cfg.GatewayIDs()
	}
	if len(ids) == 0 {
		return fmt.Errorf("no gateways configured")
	}
	for _, id := range ids {
		if _, err := cfg.Gateway(id); err != nil {
			return err
		}
	}
	parallel := inventoryParallel
	if parallel <= 0 {
		parallel = cfg.Inventory.Parallel
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	runner := inventory.NewRunner(a.opener(),
		inventory.WithParallel(parallel),
		inventory.WithCollectOptions(cfg.Collect.Options(), collect.WithObserver(a.metrics)),
	)
	report := runner.Run(ctx, ids)

	paths, err := inventory.Save(cfg.OutputDir, report)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderInventory(report, paths))
	if a.history != nil {
		id := uuid.NewString()
		if err := a.history.SaveInventory(ctx, id, report.Generated, report.Records()); err != nil {
			logging.Get(logging.CategoryInventory).Warn("failed to store inventory history: %v", err)
		} else {
			fmt.Fprintln(out, mutedStyle.Render("stored as gwprov history --inventory "+id))
		}
	}
	if errs := report.Errors(); len(errs) == len(ids) {
		return fmt.Errorf("all %d gateways failed", len(ids))
	}
	return ctx.Err()
}
