package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Run the port reload sequence on a gateway",
	Long: `Logs in to the gateway console, opens Port Settings and replays the
reload sequence: module reset commands followed by the enable toggles and
saves that bring every port back online.`,
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().StringVarP(&gatewayID, "gateway", "g", "", "Gateway ID (required)")
	_ = reloadCmd.MarkFlagRequired("gateway")
}

func runReload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, release, err := a.console(ctx, gatewayID)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Login(ctx); err != nil {
		return fmt.Errorf("gateway %s login: %w", gatewayID, err)
	}
	if err := c.OpenPortSettings(ctx); err != nil {
		return fmt.Errorf("gateway %s port settings: %w", gatewayID, err)
	}
	if err := c.ReloadPorts(ctx); err != nil {
		return fmt.Errorf("gateway %s: %w", gatewayID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "gateway %s: reload sequence complete\n", gatewayID)
	return nil
}
