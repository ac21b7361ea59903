package main

import (
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the canonical report to a timestamped snapshot",
	Long:  `Copy <folder>/<name> to <folder>/report-<timestamp>.json unless that snapshot already exists.`,
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runSnapshot(_ *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	name, err := rc.store.Snapshot(rc.folder)
	if err != nil {
		return err
	}

	log.WithField("snapshot", name).Info("Snapshot ready")

	return nil
}
