package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gwprov/internal/checkpoint"
	"gwprov/internal/classify"
	"gwprov/internal/config"
	"gwprov/internal/logging"
	"gwprov/internal/portdata"
	"gwprov/internal/provision"
	"gwprov/internal/runlog"
)

var (
	startPort  int
	skipScrape bool
	resume     bool
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate every port's SIM on the dealer portal",
	Long: `Collects IMEI and ICCID from the gateway (unless --skip-scrape), signs in
to the dealer portal and submits the activation form for each port from
--start to A64. Ports missing an identifier are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProvision(cmd, provision.Activation(cfg.Workflows.Activation.Params()), cfg.Workflows.Activation.Login)
	},
}

var refillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Refill every port's line on the dealer portal",
	Long: `Collects phone numbers from the gateway (unless --skip-scrape), signs in
to the dealer portal and purchases the configured plan for each port from
--start to A64. Ports without a phone number are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProvision(cmd, provision.Refill(cfg.Workflows.Refill.Params()), cfg.Workflows.Refill.Login)
	},
}

func init() {
	for _, c := range []*cobra.Command{activateCmd, refillCmd} {
		c.Flags().StringVarP(&gatewayID, "gateway", "g", "", "Gateway ID (required)")
		c.Flags().IntVarP(&startPort, "start", "s", 0, "First port to process, 1-64 (default run.start_port)")
		c.Flags().BoolVar(&skipScrape, "skip-scrape", false, "Use existing checkpoint files instead of scraping")
		c.Flags().BoolVar(&resume, "resume", false, "Start at the port suggested by the last run's history")
		_ = c.MarkFlagRequired("gateway")
	}
}

func runProvision(cmd *cobra.Command, wf provision.Workflow, login config.LoginConfig) error {
	ctx := cmd.Context()
	log := logging.Get(logging.CategoryProvision).With("workflow", wf.Name, "gateway", gatewayID)

	if _, err := cfg.Gateway(gatewayID); err != nil {
		return err
	}
	policy, err := cfg.EmailPolicy()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	start, err := chooseStart(ctx, a, wf.Name)
	if err != nil {
		return err
	}

	if skipScrape {
		log.Info("skipping scrape; using checkpoints in %s", checkpoint.Dir(cfg.OutputDir, gatewayID))
	} else if _, err := a.collectDatasets(ctx, gatewayID, wf.Required); err != nil {
		return err
	}
	sets := make([]*portdata.Dataset, 0, len(wf.Required))
	for _, attr := range wf.Required {
		sets = append(sets, checkpoint.LoadOrEmpty(cfg.OutputDir, gatewayID, attr))
	}
	ds := portdata.Merge(gatewayID, classify.Carrier, sets...)

	page, release, err := a.page(ctx, "portal")
	if err != nil {
		return err
	}
	defer release()
	if err := provision.Authenticate(ctx, page, login.Authenticator()); err != nil {
		return fmt.Errorf("dealer portal sign-in: %w", err)
	}

	runLog, err := runlog.Open(runlog.Path(cfg.OutputDir, wf.Name))
	if err != nil {
		return err
	}
	defer runLog.Close()

	recorders := provision.Recorders{a.metrics}
	var runID string
	if a.history != nil {
		runID, err = a.history.BeginRun(ctx, wf.Name, gatewayID, start)
		if err != nil {
			log.Warn("run history unavailable: %v", err)
		} else {
			recorders = append(recorders, a.history.Recorder(runID))
		}
	}

	engine, err := provision.NewEngine(page, wf, policy, runLog,
		provision.WithGateway(gatewayID),
		provision.WithRecorder(recorders),
	)
	if err != nil {
		return err
	}
	res, runErr := engine.Run(ctx, ds, start)

	a.metrics.RunFinished(res)
	if runID != "" {
		if err := a.history.FinishRun(context.WithoutCancel(ctx), runID, res); err != nil {
			log.Warn("failed to finish run history: %v", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
	return runErr
}

// chooseStart applies --start, then --resume, then run.start_port.
func chooseStart(ctx context.Context, a *app, workflow string) (int, error) {
	if startPort != 0 {
		if startPort < 1 || startPort > portdata.PortCount {
			return 0, fmt.Errorf("--start must be between 1 and %d", portdata.PortCount)
		}
		return startPort, nil
	}
	if resume && a.history != nil {
		port, ok, err := a.history.SuggestStart(ctx, workflow, gatewayID)
		if err != nil {
			return 0, err
		}
		if ok {
			logging.Provision("resuming %s on gateway %s at A%d", workflow, gatewayID, port)
			return port, nil
		}
	}
	return cfg.Run.StartPort, nil
}
