// Command gwprov collects SIM/IMEI data from GSM gateway consoles and drives
// the dealer portal's activation and refill forms port by port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gwprov/internal/config"
	"gwprov/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	outputDir  string

	// Set by PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gwprov",
	Short: "Gateway SIM provisioning",
	Long: `gwprov reads IMEI, ICCID and phone numbers from every port of a GSM
gateway and feeds them, one port at a time, into the dealer portal's
activation or refill form.

Every provisioning run appends to <output>/<workflow>_run.log. When a run
stops early, review the log and re-run with --start at the first port that
needs another attempt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.OutputDir, cfg.Logging.Logging(), logger); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.Boot("config loaded from %s (output=%s)", configPath, cfg.OutputDir)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		c.OutputDir = outputDir
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Output directory (overrides output_dir and OUTPUT_PATH)")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(refillCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
