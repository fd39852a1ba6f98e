package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/market-sentinel/src/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingestion, collectors, alerting and the operator API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Telemetry.Enabled {
			telemetry.InstallLogHook(nil)

			otelShutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName)
			if err != nil {
				return err
			}

			defer func() {
				if err := otelShutdown(context.Background()); err != nil {
					log.Warnf("telemetry shutdown: %v", err)
				}
			}()
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	},
}
