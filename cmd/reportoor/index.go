package main

import (
	"fmt"
	"time"

	"github.com/ethpandaops/reportoor/pkg/api/indexer"
	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Record new snapshots in the history database",
	Long:  `Run a single indexing pass over the configured report source and exit.`,
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runIndex(cmd *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	if rc.cfg.History == nil {
		return fmt.Errorf("history section is required in config")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	db := indexstore.NewStore(log, &rc.cfg.History.Database)
	if err := db.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := db.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close history store")
		}
	}()

	// The interval is unused for a single pass.
	idx := indexer.NewIndexer(log, db, rc.reader(), time.Minute, rc.cfg.History.Concurrency)

	count, err := idx.RunOnce(ctx)
	if err != nil {
		return err
	}

	log.WithField("indexed", count).Info("Indexing completed")

	return nil
}
