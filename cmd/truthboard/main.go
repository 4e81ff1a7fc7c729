// Command truthboard runs the dashboard backend: it tracks in-flight
// canister calls for the loading overlay and aggregates balances across
// the ICP ledger and a token ledger.
//
// Usage:
//
//	truthboard serve --config truthboard.yaml
//	truthboard balance <principal>[.<subaccount_hex>]
//	truthboard call <canister> <method> [json-args]
//	truthboard setup
//
// The gateway endpoint can be overridden with TRUTHBOARD_GATEWAY.
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

	"github.com/vadiminshakov/truthboard/config"
	"github.com/vadiminshakov/truthboard/internal/app"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "truthboard",
	Short: "Truth dashboard backend",
	Long: `truthboard tracks in-flight canister calls for the dashboard loading
overlay and reports balances from the ICP ledger and a token ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, balanceCmd, callCmd, setupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadDashboard reads the config and builds the dashboard.
func loadDashboard() (*app.Dashboard, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}
