package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethpandaops/reportoor/pkg/collector"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var collectInput string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Build the canonical report from a runner event stream",
	Long: `Read newline-delimited JSON test events (test_end, run_end) from a file or
stdin, resolve retries to one result per test and write the canonical report
to the reporter output folder.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringVar(&collectInput, "input", "-",
		`Event stream file ("-" reads stdin)`)
	collectCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	testMatch, err := rc.reporter.CompileTestMatch()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin

	if collectInput != "-" {
		f, err := os.Open(collectInput)
		if err != nil {
			return fmt.Errorf("opening event stream: %w", err)
		}
		defer func() { _ = f.Close() }()

		in = f
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	c := collector.New(log, rc.store, collector.Options{
		Name:         rc.reporter.Name,
		OutputFolder: rc.folder,
		Projects:     rc.reporter.Projects,
		TestMatch:    testMatch,
	})

	r, err := c.Ingest(ctx, in)
	if err != nil {
		return fmt.Errorf("collecting results: %w", err)
	}

	tally := r.Tally()

	log.WithFields(logrus.Fields{
		"status":     r.Status,
		"total":      tally.Total,
		"unexpected": tally.Unexpected,
		"flaky":      tally.Flaky,
	}).Info("Report written")

	return nil
}
