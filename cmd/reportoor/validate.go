package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [report.json...]",
	Short: "Validate report files",
	Long:  `Check that report files parse and hold one valid result per test. Defaults to the canonical report.`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runValidate(_ *cobra.Command, args []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{filepath.Join(rc.folder, rc.reporter.Name)}
	}

	for _, p := range paths {
		r, err := rc.store.Load(p)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"path":    p,
			"results": len(r.Results),
			"status":  r.Status,
		}).Info("Report is valid")
	}

	return nil
}
