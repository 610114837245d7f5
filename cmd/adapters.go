package main

import (
	"fmt"

	"github.com/spf13/cobra"

	devicescan "github.com/httprunner/DeviceScan"
)

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the built-in adapter ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range devicescan.DefaultRegistry().IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
