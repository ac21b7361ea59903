package main

import (
	"github.com/ethpandaops/reportoor/pkg/rerun"
	"github.com/ethpandaops/reportoor/pkg/selector"
	"github.com/spf13/cobra"
)

var rerunCmd = &cobra.Command{
	Use:   "rerun [-- runner args...]",
	Short: "Re-run the tests that failed in the latest report",
	Long: `Read the latest report and invoke rerun.command with the location of every
failed test, followed by any arguments given after "--". Nothing is run when
the latest report has no failures.`,
	RunE: runRerun,
}

func init() {
	rootCmd.AddCommand(rerunCmd)
	rerunCmd.Flags().StringVar(&reportFolder, "folder", "",
		"Report folder (default: reporter.output_folder)")
}

func runRerun(cmd *cobra.Command, args []string) error {
	rc, err := newReportContext()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	exec := rerun.NewCommandExecutor(log, rerun.Options{
		Command: rc.cfg.Rerun.Command,
		Timeout: rc.cfg.RerunTimeout(),
	})

	out, err := selector.New(log, rc.reader(), exec).Rerun(ctx, args)
	if err != nil {
		return err
	}

	if out.Ran {
		log.WithField("tests", len(out.Targets)).Info("Re-run finished")
	}

	return nil
}
