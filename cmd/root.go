package main

import (
	"fmt"

	"github.com/r74tech/raven-front/config"
	"github.com/r74tech/raven-front/logger"
	"github.com/spf13/cobra"
)

var (
	envName string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "raven",
	Short:         "Search front end for a Meilisearch page index",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(envName)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "config environment to load (defaults to $ENV, then local)")
}

func newLogger() logger.Logger {
	return logger.NewWithLevel(cfg.GetLogLevel())
}
