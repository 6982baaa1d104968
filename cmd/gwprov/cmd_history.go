package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gwprov/internal/provision"
	"gwprov/internal/store"
)

var (
	historyLimit     int
	historyRun       string
	historyInventory string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent provisioning runs",
	Long: `Lists recent activation and refill runs from the history database.
With --run, prints that run's per-port outcomes and the start port for
re-running it. With --inventory, prints the stored status counts of one
inventory run.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show outcomes of one run ID")
	historyCmd.Flags().StringVar(&historyInventory, "inventory", "", "Show status counts of one inventory run ID (takes precedence over --run)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Store.Enabled {
		return fmt.Errorf("run history is disabled (store.enabled: false)")
	}
	ctx := cmd.Context()
	h, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	if historyInventory != "" {
		counts, err := h.InventoryCounts(ctx, historyInventory)
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			return fmt.Errorf("inventory %s has no stored records", historyInventory)
		}
		fmt.Fprintln(out, renderInventoryCounts(historyInventory, counts))
		return nil
	}
	if historyRun == "" {
		runs, err := h.RecentRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderRuns(runs))
		return nil
	}

	outcomes, err := h.Outcomes(ctx, historyRun)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return fmt.Errorf("run %s has no recorded outcomes", historyRun)
	}
	for _, o := range outcomes {
		fmt.Fprintf(out, "%-4s %s\n", o.Port, outcomeStyle(o).Render(o.String()))
	}
	first := outcomes[0]
	port, ok, err := h.ResumePort(ctx, historyRun)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(out, "\nre-run %s on gateway %s with --start %d\n", first.Workflow, first.Gateway, port)
	}
	return nil
}

func outcomeStyle(o provision.Outcome) lipgloss.Style {
	switch o.Kind {
	case provision.KindFailed:
		return failStyle
	case provision.KindSkipped:
		return skipStyle
	}
	return successStyle
}
