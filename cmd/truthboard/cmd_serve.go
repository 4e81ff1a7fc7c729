package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard backend and the periodic balance refresh",
	Long: `Serves the loading overlay state, request history, balances and
Prometheus metrics over HTTP. Configured accounts are refreshed on every
refresh_interval and their snapshots are persisted to the WAL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDashboard()
		if err != nil {
			return err
		}

		logger.Info("starting truthboard",
			zap.String("gateway", d.Config.Gateway),
			zap.String("listen", d.Config.Listen),
			zap.Int("accounts", len(d.Config.Accounts)),
			zap.Duration("refresh_interval", d.Config.RefreshInterval))

		return d.Serve(cmd.Context())
	},
}
