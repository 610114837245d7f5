package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/httprunner/DeviceScan/internal/storage"
)

func newDevicesCmd() *cobra.Command {
	var flagRecordDB string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices recorded in the SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.Open(flagRecordDB)
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := db.Devices(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADAPTER\tSERIAL\tSTATUS\tDESCRIPTION\tLAST SEEN\tLAST ERROR")
			for _, row := range rows {
				seen := "-"
				if !row.LastSeenAt.IsZero() {
					seen = row.LastSeenAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					row.Adapter, row.Serial, row.Status, row.Description, seen, row.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&flagRecordDB, "record-db", "", "SQLite file (defaults to $DEVICESCAN_DB_PATH or ~/.devicescan/devices.sqlite)")
	return cmd
}
