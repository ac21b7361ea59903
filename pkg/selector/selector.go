package selector

import (
	"context"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/rerun"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Outcome describes a Rerun call.
type Outcome struct {
	Targets []string
	Ran     bool
}

// Selector picks the failed tests of the latest report and hands them to
// an executor.
type Selector struct {
	log    logrus.FieldLogger
	reader storage.Reader
	exec   rerun.Executor
}

// New creates a Selector. exec may be nil when only Select is used.
func New(log logrus.FieldLogger, reader storage.Reader, exec rerun.Executor) *Selector {
	return &Selector{
		log:    log.WithField("component", "selector"),
		reader: reader,
		exec:   exec,
	}
}

// Latest reads and decodes the latest report.
func (s *Selector) Latest(ctx context.Context) (*report.Report, error) {
	data, err := s.reader.GetLatest(ctx)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, fmt.Errorf("%w in %s", store.ErrLatestReportAbsent, s.reader.Describe())
	}

	r, err := report.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding latest report: %w", err)
	}

	return r, nil
}

// Select returns the location of every unexpected result in the latest
// report, in report order.
func (s *Selector) Select(ctx context.Context) ([]string, error) {
	r, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}

	return r.Failures(), nil
}

// Rerun re-executes the failed tests of the latest report. Nothing is run
// when there are no failures.
func (s *Selector) Rerun(ctx context.Context, passthrough []string) (*Outcome, error) {
	targets, err := s.Select(ctx)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		s.log.Info("No failed tests, nothing to re-run")

		return &Outcome{Targets: targets}, nil
	}

	if s.exec == nil {
		return nil, fmt.Errorf("no executor configured")
	}

	s.log.WithField("tests", len(targets)).Info("Re-running failed tests")

	if err := s.exec.Execute(ctx, targets, passthrough); err != nil {
		return &Outcome{Targets: targets, Ran: true}, fmt.Errorf("re-running failed tests: %w", err)
	}

	return &Outcome{Targets: targets, Ran: true}, nil
}
