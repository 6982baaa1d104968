package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gwprov/internal/portdata"
)

var (
	gatewayID  string
	scrapeAttr []string
)

// scrapeCmd builds datasets from a gateway console and writes checkpoints.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect IMEI/ICCID/MDN datasets from a gateway",
	Long: `Logs in to the gateway console, issues the AT query for each requested
attribute on all 64 ports and writes one checkpoint file per attribute to
<output>/gw<ID>/dataset_<attr>.json.

Example:
  gwprov scrape --gateway 101 --attrs imei,iccid`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&gatewayID, "gateway", "g", "", "Gateway ID (required)")
	scrapeCmd.Flags().StringSliceVar(&scrapeAttr, "attrs", []string{"imei", "iccid", "mdn"}, "Attributes to collect")
	_ = scrapeCmd.MarkFlagRequired("gateway")
}

func runScrape(cmd *cobra.Command, args []string) error {
	attrs, err := parseAttributes(scrapeAttr)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	sets, err := a.collectDatasets(ctx, gatewayID, attrs)
	if err != nil {
		return err
	}
	for _, ds := range sets {
		fmt.Fprintf(cmd.OutOrStdout(), "%-6s %2d/%d resolved\n", ds.Attribute.Label(), ds.Resolved(), portdata.PortCount)
	}
	return nil
}

// parseAttributes accepts names or AT commands, dropping duplicates.
func parseAttributes(raw []string) ([]portdata.Attribute, error) {
	var out []portdata.Attribute
	seen := map[portdata.Attribute]bool{}
	for _, r := range raw {
		attr, ok := portdata.ParseAttribute(strings.TrimSpace(r))
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q (want imei, iccid or mdn)", r)
		}
		if !seen[attr] {
			seen[attr] = true
			out = append(out, attr)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no attributes requested")
	}
	return out, nil
}
