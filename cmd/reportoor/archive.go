package main

import (
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy the report folder into a timestamped sibling folder",
	Long: `Copy the report folder to <parent>/report-<timestamp>, named after the start
time of the canonical report. Does nothing when there is no report or the
archive already exists.`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runArchive(_ *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	res, err := rc.store.Archive(rc.folder)
	if err != nil {
		return err
	}

	if res.Path != "" {
		log.WithField("path", res.Path).
			WithField("created", res.Archived).
			Info("Archive ready")
	}

	return nil
}
