package main

import (
	"github.com/spf13/cobra"
)

var linkLatestCmd = &cobra.Command{
	Use:   "link-latest",
	Short: "Point latest.json at the newest snapshot",
	Long: `Scan the report folder for report-<timestamp>.json snapshots and repoint
latest.json at the newest one. Fails when no snapshot exists.`,
	RunE: runLinkLatest,
}

func init() {
	rootCmd.AddCommand(linkLatestCmd)
	linkLatestCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runLinkLatest(_ *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	target, err := rc.store.LinkLatest(rc.folder)
	if err != nil {
		return err
	}

	log.WithField("target", target).Info("Latest report linked")

	return nil
}
