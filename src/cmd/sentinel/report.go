package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jiaming2012/market-sentinel/src/collectors"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the 24 hour metrics and alerts report",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closeStore, err := openStore(cfg, nil)
		if err != nil {
			return err
		}
		defer closeStore()

		report, err := collectors.BuildReport(cmd.Context(), db, time.Now())
		if err != nil {
			return err
		}

		renderReport(cmd.OutOrStdout(), report)
		return nil
	},
}
