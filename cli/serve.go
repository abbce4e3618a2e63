package cli

import (
	"github.com/spf13/cobra"

	"portsweep/api"
	"portsweep/config"
	"portsweep/logging"
)

func newServeCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan REST API and its background workers",
		Long: `serve exposes POST/GET/DELETE /api/v1/scans backed by Redis.
Settings come from the environment, optionally seeded from a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				File:   cfg.LogFile,
			})
			if err != nil {
				return err
			}
			return api.Run(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment")
	return cmd
}
