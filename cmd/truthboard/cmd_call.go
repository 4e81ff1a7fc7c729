package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callUpdate bool

var callCmd = &cobra.Command{
	Use:   "call <canister> <method> [json-args]",
	Short: "Invoke a canister method through the tracked gateway client",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDashboard()
		if err != nil {
			return err
		}
		c, err := d.Canister(args[0])
		if err != nil {
			return err
		}

		var callArgs any
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &callArgs); err != nil {
				return fmt.Errorf("incorrect json args: %w", err)
			}
		}

		call := c.Query
		if callUpdate {
			call = c.Update
		}
		reply, err := call(cmd.Context(), args[1], callArgs)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(reply))
		return nil
	},
}

func init() {
	callCmd.Flags().BoolVar(&callUpdate, "update", false, "send an update call instead of a query")
}
