package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/reportoor/pkg/selector"
	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Print the locations of failed tests in the latest report",
	Long:  `Print one <file>:<line>:<column> per line for every failed test in the latest report.`,
	RunE:  runFailures,
}

func init() {
	rootCmd.AddCommand(failuresCmd)
	failuresCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runFailures(cmd *cobra.Command, _ []string) error {
	// Keep stdout for the locations so the output can be piped.
	log.SetOutput(os.Stderr)

	rc, err := newReportContext()
	if err != nil {
		return err
	}

	targets, err := selector.New(log, rc.reader(), nil).Select(cmd.Context())
	if err != nil {
		return err
	}

	printLines(targets)

	return nil
}

// printLines writes one value per line to stdout.
func printLines(values []string) {
	for _, v := range values {
		fmt.Println(v)
	}
}
