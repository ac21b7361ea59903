package main

import (
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/api"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Serve the latest report, snapshots, failures, archives and run history over HTTP.`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runAPI(cmd *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	if rc.cfg.API == nil {
		return fmt.Errorf("api section is required in config")
	}

	loc, err := rc.reporter.Location()
	if err != nil {
		return err
	}

	opts := api.Options{
		Config:      rc.cfg.API,
		Reader:      rc.reader(),
		History:     rc.cfg.History,
		ArchiveRoot: filepath.Dir(filepath.Clean(rc.folder)),
		Location:    loc,
	}

	if rc.cfg.Storage.Method == "s3" {
		opts.S3 = rc.cfg.Upload.S3
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	srv := api.NewServer(log, opts)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down API server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
