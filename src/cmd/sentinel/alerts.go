package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/market-sentinel/src/alerting"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and resolve stored alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, active ones by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := alertFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		db, closeStore, err := openStore(cfg, nil)
		if err != nil {
			return err
		}
		defer closeStore()

		alerts, err := db.ListAlerts(cmd.Context(), filter)
		if err != nil {
			return err
		}

		renderAlerts(cmd.OutOrStdout(), alerts)
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Mark an active alert as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid alert id %q: %w", args[0], err)
		}

		by, err := cmd.Flags().GetString("by")
		if err != nil {
			return err
		}

		notes, err := cmd.Flags().GetString("notes")
		if err != nil {
			return err
		}

		db, closeStore, err := openStore(cfg, nil)
		if err != nil {
			return err
		}
		defer closeStore()

		resolved, err := alerting.NewEngine(db).Resolve(cmd.Context(), id, by, notes)
		if err != nil {
			return err
		}

		if !resolved {
			fmt.Fprintf(cmd.OutOrStdout(), "alert %s was already resolved\n", id)
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "alert %s resolved by %s\n", id, by)
		return nil
	},
}

var alertsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write alerts matching the filters to a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := alertFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		out, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}

		db, closeStore, err := openStore(cfg, nil)
		if err != nil {
			return err
		}
		defer closeStore()

		alerts, err := db.ListAlerts(cmd.Context(), filter)
		if err != nil {
			return err
		}

		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer file.Close()

		if err := exportAlerts(file, alerts); err != nil {
			return err
		}

		log.Infof("wrote %d alerts to %s", len(alerts), out)
		return nil
	},
}

func alertFilterFromFlags(cmd *cobra.Command) (store.AlertFilter, error) {
	status, err := cmd.Flags().GetString("status")
	if err != nil {
		return store.AlertFilter{}, err
	}

	severity, err := cmd.Flags().GetString("severity")
	if err != nil {
		return store.AlertFilter{}, err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return store.AlertFilter{}, err
	}

	return buildAlertFilter(status, severity, limit)
}

func buildAlertFilter(status, severity string, limit int) (store.AlertFilter, error) {
	filter := store.AlertFilter{Limit: limit}

	switch status {
	case "all":
	case string(eventmodels.AlertStatusActive), string(eventmodels.AlertStatusResolved):
		filter.Status = eventmodels.AlertStatus(status)
	default:
		return filter, fmt.Errorf("unknown status %q: %w", status, eventmodels.ErrConfig)
	}

	if severity != "" {
		filter.Severity = eventmodels.Severity(severity)
		if !filter.Severity.Valid() {
			return filter, fmt.Errorf("unknown severity %q: %w", severity, eventmodels.ErrConfig)
		}
	}

	return filter, nil
}

func init() {
	for _, c := range []*cobra.Command{alertsListCmd, alertsExportCmd} {
		c.Flags().String("status", string(eventmodels.AlertStatusActive), "active, resolved or all")
		c.Flags().String("severity", "", "low, medium, high or critical")
	}
	alertsListCmd.Flags().Int("limit", 100, "maximum number of alerts")
	alertsExportCmd.Flags().Int("limit", 0, "maximum number of alerts, 0 for no limit")
	alertsExportCmd.Flags().String("out", "alerts.csv", "output CSV path")

	alertsResolveCmd.Flags().String("by", "cli", "who resolved the alert")
	alertsResolveCmd.Flags().String("notes", "", "resolution notes")

	alertsCmd.AddCommand(alertsListCmd, alertsResolveCmd, alertsExportCmd)
}
