package main

import (
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/spf13/cobra"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary from a report",
	Long:  `Reads a report file and produces a markdown summary, e.g. for a CI job summary.`,
	RunE:  runGenerateMarkdownSummary,
}

var (
	mdReportPath string
	mdOutput     string
)

const maxMarkdownChars = 65000

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdReportPath, "report", "",
		"Report file (default: the canonical report)")
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "summary.md",
		"Output file path")
	generateMarkdownSummaryCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runGenerateMarkdownSummary(_ *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	path := mdReportPath
	if path == "" {
		path = filepath.Join(rc.folder, rc.reporter.Name)
	}

	log.WithField("report", path).Info("Generating markdown summary")

	r, err := rc.store.Load(path)
	if err != nil {
		return err
	}

	md := summary.Markdown(r, maxMarkdownChars)

	owner, err := fsutil.ParseOwner(rc.cfg.Global.ResultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results_owner: %w", err)
	}

	if err := fsutil.WriteFile(mdOutput, []byte(md), 0o644, owner); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", mdOutput).
		Info("Markdown summary generated successfully")

	return nil
}
