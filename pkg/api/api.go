package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/reportoor/pkg/api/indexer"
	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/selector"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout         = 10 * time.Second
	defaultIndexingInterval = 60 * time.Second
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Options wires the server to its data sources.
type Options struct {
	Config *config.APIConfig
	// Reader is the report source served by the report endpoints.
	Reader storage.Reader
	// History enables the run-history endpoints and background indexer.
	History *config.HistoryConfig
	// ArchiveRoot is the local folder holding report-<ts> archive folders.
	ArchiveRoot string
	// S3 is set when archives are served from a bucket.
	S3 *config.S3UploadConfig
	// Location is the zone snapshot labels were rendered in. Defaults to UTC.
	Location *time.Location
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.APIConfig
	opts        Options
	reader      storage.Reader
	selector    *selector.Selector
	localServer *localFileServer
	presigner   *s3Presigner
	limiters    *clientLimiters
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	httpServer  *http.Server
	wg          sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, opts Options) Server {
	return newServer(log, opts)
}

func newServer(log logrus.FieldLogger, opts Options) *server {
	log = log.WithField("component", "api")

	if opts.Location == nil {
		opts.Location = time.UTC
	}

	s := &server{
		log:      log,
		cfg:      opts.Config,
		opts:     opts,
		reader:   opts.Reader,
		selector: selector.New(log, opts.Reader, nil),
	}

	if rl := opts.Config.Server.RateLimit; rl.Enabled {
		s.limiters = newClientLimiters(rl.RequestsPerMinute)
	}

	return s
}

// Start prepares archive serving and history indexing, then starts the
// HTTP server.
func (s *server) Start(ctx context.Context) error {
	if s.cfg.Archives.Enabled {
		if err := s.prepareArchives(); err != nil {
			return fmt.Errorf("preparing archives: %w", err)
		}
	}

	// The history store must exist before the router is built so that the
	// history endpoints are wired. The indexer starts after the listener.
	if s.opts.History != nil {
		if err := s.prepareHistory(ctx); err != nil {
			return fmt.Errorf("preparing history: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	if s.limiters != nil {
		s.limiters.start()
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithFields(logrus.Fields{
			"listen": s.cfg.Server.Listen,
			"source": s.reader.Describe(),
		}).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the history store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.limiters != nil {
		s.limiters.stop()
	}

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping history store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareArchives picks the S3 presigner or the local file server.
func (s *server) prepareArchives() error {
	if s.opts.S3 != nil && s.opts.S3.Enabled {
		expiry, err := s.cfg.Archives.PresignExpiryDuration()
		if err != nil {
			return err
		}

		s.presigner = newS3Presigner(s.log, s.opts.S3, expiry)

		s.log.Info("Archive serving via presigned URLs enabled")

		return nil
	}

	if s.opts.ArchiveRoot == "" {
		return fmt.Errorf("no archive location configured")
	}

	s.localServer = newLocalFileServer(s.log, s.opts.ArchiveRoot)

	s.log.WithField("root", s.opts.ArchiveRoot).Info("Local archive serving enabled")

	return nil
}

// prepareHistory opens the history store and creates the indexer without
// starting it.
func (s *server) prepareHistory(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(s.log, &s.opts.History.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	interval := defaultIndexingInterval

	if s.opts.History.Interval != "" {
		d, err := time.ParseDuration(s.opts.History.Interval)
		if err != nil {
			return fmt.Errorf("parsing history interval: %w", err)
		}

		interval = d
	}

	s.indexer = indexer.NewIndexer(
		s.log, s.indexStore, s.reader, interval, s.opts.History.Concurrency,
	)

	s.log.Info("History indexing enabled")

	return nil
}
