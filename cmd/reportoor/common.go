package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/store"
)

// reportFolder overrides the reporter output folder for a single command.
var reportFolder string

// loadConfig loads and validates the configuration given with --config.
// Without --config the defaults apply.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// reportContext bundles what the report commands operate on.
type reportContext struct {
	cfg      *config.Config
	reporter *config.ReporterConfig
	store    store.Store
	folder   string
}

func newReportContext() (*reportContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	reporter, err := cfg.ReporterOptions()
	if err != nil {
		return nil, err
	}

	loc, err := reporter.Location()
	if err != nil {
		return nil, err
	}

	owner, err := fsutil.ParseOwner(cfg.Global.ResultsOwner)
	if err != nil {
		return nil, fmt.Errorf("parsing results_owner: %w", err)
	}

	folder := reporter.OutputFolder
	if reportFolder != "" {
		folder = reportFolder
	}

	return &reportContext{
		cfg:      cfg,
		reporter: reporter,
		store: store.New(log, &store.Config{
			Filename: reporter.Name,
			Location: loc,
			Owner:    owner,
		}),
		folder: folder,
	}, nil
}

// reader returns the report source selected by storage.method.
func (rc *reportContext) reader() storage.Reader {
	if rc.cfg.Storage.Method == "s3" {
		return storage.NewS3Reader(log, rc.cfg.Upload.S3)
	}

	return storage.NewLocalReader(rc.store, rc.folder)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
