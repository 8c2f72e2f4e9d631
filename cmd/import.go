package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/r74tech/raven-front/db/kvdb"
	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/services/ingest"
	"github.com/spf13/cobra"
)

var (
	importPath   string
	importStatus bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import exported page documents into the local index",
	Long: `Reads every JSON or JSON Lines document file under --path and indexes the pages
into the local bleve index used by the "local" search engine. Files that did not
change since their last import are skipped.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importPath, "path", "", "file or directory holding the exported documents")
	importCmd.Flags().BoolVar(&importStatus, "status", false, "only print when documents were last imported and how many files are tracked")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	log := newLogger()

	kvDB, err := kvdb.New(log, cfg)
	if err != nil {
		return err
	}
	defer kvDB.Close()

	if importStatus {
		status := ingest.New(log, nil, kvDB)
		last, err := status.LastImport()
		if errors.Is(err, kvdb.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing imported yet")
			return nil
		}
		if err != nil {
			return err
		}
		files, err := status.TrackedFiles()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "last import %s, %d documents, %d files tracked\n",
			last.LastImported.Format(time.RFC3339), last.Documents, len(files))
		return nil
	}

	if importPath == "" {
		return errors.New("--path is required")
	}

	if storage := cfg.GetStoragePath(); storage != "" {
		if err := os.MkdirAll(storage, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	index, err := searchdb.New(log, cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	summary, err := ingest.New(log, index, kvDB).Load(cmd.Context(), importPath)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents from %d files (%d unchanged, %d failed)\n",
		summary.Documents, summary.Files, summary.Skipped, summary.Failed)

	return err
}
