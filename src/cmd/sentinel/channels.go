package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jiaming2012/market-sentinel/src/notifier"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect configured notification channels",
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured notification channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := notifier.NewDispatcherFromConfig(cfg.Notifications)
		renderChannels(cmd.OutOrStdout(), d.ListChannels(), nil)
		return nil
	},
}

var channelsTestCmd = &cobra.Command{
	Use:   "test [channel...]",
	Short: "Send a test message through channels, all of them by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := notifier.NewDispatcherFromConfig(cfg.Notifications)

		names := args
		if len(names) == 0 {
			names = d.ListChannels()
		}

		results := make(map[string]bool, len(names))
		failed := 0
		for _, name := range names {
			sent, err := d.TestChannel(cmd.Context(), name)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
				failed++
			}
			results[name] = sent
		}

		renderChannels(cmd.OutOrStdout(), names, results)

		if failed > 0 {
			return fmt.Errorf("%d of %d channel(s) failed", failed, len(names))
		}
		return nil
	},
}

func init() {
	channelsCmd.AddCommand(channelsListCmd, channelsTestCmd)
}
