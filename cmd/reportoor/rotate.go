package main

import (
	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Snapshot the canonical report and relink latest.json",
	Long:  `Run snapshot followed by link-latest. Safe to repeat for the same run.`,
	RunE:  runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
	rotateCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runRotate(_ *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	name, err := rc.store.Snapshot(rc.folder)
	if err != nil {
		return err
	}

	target, err := rc.store.LinkLatest(rc.folder)
	if err != nil {
		return err
	}

	log.WithField("snapshot", name).
		WithField("latest", target).
		Info("Report rotated")

	return nil
}
