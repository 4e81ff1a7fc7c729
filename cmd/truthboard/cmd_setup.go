package main

import (
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/truthboard/internal/setup"
)

var setupOutput string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setup.RunTUI(setupOutput)
	},
}

func init() {
	setupCmd.Flags().StringVarP(&setupOutput, "output", "o", "truthboard.yaml", "where to write the generated config")
}
