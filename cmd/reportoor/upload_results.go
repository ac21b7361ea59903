package main

import (
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadMethod     string
	uploadArchiveDir string
	uploadSnapshot   string
	uploadNoLatest   bool
)

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload reports to remote storage",
	Long: `Upload an archived report folder and/or a snapshot to S3-compatible storage
using the config file settings. Without --snapshot the newest local snapshot
is published.`,
	RunE: runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadMethod, "method", "s3",
		"Upload method (currently only \"s3\")")
	uploadResultsCmd.Flags().StringVar(&uploadArchiveDir, "archive-dir", "",
		"Archived report folder to upload")
	uploadResultsCmd.Flags().StringVar(&uploadSnapshot, "snapshot", "",
		"Snapshot file to publish (default: newest snapshot in the report folder)")
	uploadResultsCmd.Flags().BoolVar(&uploadNoLatest, "no-latest", false,
		"Do not update the remote latest.json")
	uploadResultsCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runUploadResults(cmd *cobra.Command, _ []string) error {
	if uploadMethod != "s3" {
		return fmt.Errorf("unsupported method %q (only \"s3\" is supported)", uploadMethod)
	}

	rc, err := newReportContext()
	if err != nil {
		return err
	}

	if !rc.cfg.S3Enabled() {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader, err := upload.NewS3Uploader(log, rc.cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	if uploadArchiveDir != "" {
		log.WithField("dir", uploadArchiveDir).Info("Uploading archive")

		if err := uploader.Upload(ctx, uploadArchiveDir); err != nil {
			return fmt.Errorf("uploading archive: %w", err)
		}
	}

	snapshot := uploadSnapshot
	if snapshot == "" {
		snapshots, err := rc.store.ListSnapshots(rc.folder)
		if err != nil {
			return err
		}

		if len(snapshots) == 0 {
			if uploadArchiveDir == "" {
				return fmt.Errorf("nothing to upload: no snapshot in %s", rc.folder)
			}

			return nil
		}

		snapshot = filepath.Join(rc.folder, snapshots[0].Name)
	}

	if err := uploader.PublishSnapshot(ctx, snapshot, !uploadNoLatest); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
