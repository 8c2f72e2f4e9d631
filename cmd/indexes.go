package main

import (
	"fmt"

	"github.com/r74tech/raven-front/api"
	"github.com/r74tech/raven-front/services/search"
	"github.com/spf13/cobra"
)

var indexesAPIKey string

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List the indexes the API key can search",
	Args:  cobra.NoArgs,
	RunE:  runIndexes,
}

func init() {
	indexesCmd.Flags().StringVar(&indexesAPIKey, "api-key", "", "API key to list indexes with (defaults to the configured key)")
	rootCmd.AddCommand(indexesCmd)
}

func runIndexes(cmd *cobra.Command, _ []string) error {
	log := newLogger()

	engine, err := api.NewEngine(log, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	credential := indexesAPIKey
	if credential == "" {
		credential = cfg.GetMeilisearchAPIKey()
	}

	indexes, err := search.New(log, engine, search.DefaultLinkTemplate).Indexes(cmd.Context(), credential)
	if err != nil {
		return err
	}
	for _, index := range indexes {
		fmt.Fprintln(cmd.OutOrStdout(), index)
	}
	return nil
}
