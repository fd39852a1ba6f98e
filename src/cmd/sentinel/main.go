package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/market-sentinel/src/config"
	"github.com/jiaming2012/market-sentinel/src/logger"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Crypto market monitoring: market, news and whale feeds with alerting",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			return err
		}

		envDir, err := cmd.Flags().GetString("env-dir")
		if err != nil {
			return err
		}

		if err := utils.InitEnvironmentVariables(envDir, goEnv); err != nil {
			log.Debugf("no env file loaded: %v", err)
		}

		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		if cfg, err = config.Load(configPath); err != nil {
			return err
		}

		return logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", os.Getenv("SENTINEL_CONFIG"), "path to the YAML config file")
	rootCmd.PersistentFlags().String("go-env", "development", "environment: development or production")
	rootCmd.PersistentFlags().String("env-dir", ".", "directory holding .env.development / .env.production")

	rootCmd.AddCommand(serveCmd, alertsCmd, channelsCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
