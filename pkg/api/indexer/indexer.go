package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of snapshots indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer scans published snapshots and records them in the history store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error

	// RunOnce indexes every snapshot not yet in the store and returns how
	// many were added.
	RunOnce(ctx context.Context) (int, error)
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	reader      storage.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new indexer.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	reader storage.Reader,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		reader:      reader,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval.
func (idx *indexer) Start(ctx context.Context) error {
	if idx.interval <= 0 {
		return fmt.Errorf("indexer interval must be positive")
	}

	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
		"source":      idx.reader.Describe(),
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()

	count, err := idx.RunOnce(ctx)
	if err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed")

		return
	}

	idx.log.WithFields(logrus.Fields{
		"indexed":  count,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Indexing pass completed")
}

// RunOnce indexes new snapshots with bounded parallelism. Snapshots are
// immutable, so an indexed snapshot is never read again. A snapshot that
// fails to read or decode is logged and skipped.
func (idx *indexer) RunOnce(ctx context.Context) (int, error) {
	names, err := idx.reader.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}

	indexedNames, err := idx.store.ListSnapshotNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing indexed snapshots: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedNames))
	for _, n := range indexedNames {
		indexedSet[n] = struct{}{}
	}

	var tasks []string

	for _, n := range names {
		if _, ok := indexedSet[n]; !ok {
			tasks = append(tasks, n)
		}
	}

	idx.log.WithFields(logrus.Fields{
		"snapshots": len(names),
		"indexed":   len(indexedNames),
		"new":       len(tasks),
	}).Debug("Scanning snapshots")

	if len(tasks) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, name := range tasks {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			if err := idx.indexSnapshot(gCtx, name); err != nil {
				idx.log.WithError(err).
					WithField("snapshot", name).
					Warn("Failed to index snapshot")

				return nil //nolint:nilerr // log and continue
			}

			idx.log.WithField("snapshot", name).Debug("Indexed snapshot")

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(indexed.Load()), fmt.Errorf("indexing snapshots: %w", err)
	}

	return int(indexed.Load()), nil
}

// indexSnapshot reads one snapshot and writes its run and result rows.
func (idx *indexer) indexSnapshot(ctx context.Context, name string) error {
	data, err := idx.reader.GetSnapshot(ctx, name)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	if data == nil {
		return fmt.Errorf("snapshot disappeared")
	}

	r, err := report.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	run, results := buildModels(name, r)

	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	// Results first: a run row marks the snapshot as done.
	if err := idx.store.ReplaceResults(ctx, name, results); err != nil {
		return err
	}

	return idx.store.UpsertRun(ctx, run)
}

func buildModels(name string, r *report.Report) (*indexstore.Run, []*indexstore.TestResult) {
	tally := r.Tally()

	run := &indexstore.Run{
		Snapshot:        name,
		StartedAt:       r.StartedAt,
		DurationMs:      r.DurationInMs,
		Status:          string(r.Status),
		TestsTotal:      tally.Total,
		TestsExpected:   tally.Expected,
		TestsUnexpected: tally.Unexpected,
		TestsFlaky:      tally.Flaky,
		TestsSkipped:    tally.Skipped,
		IndexedAt:       time.Now().UTC(),
	}

	results := make([]*indexstore.TestResult, 0, len(r.Results))

	for _, res := range r.Results {
		results = append(results, &indexstore.TestResult{
			Snapshot:   name,
			TestID:     res.ID,
			Project:    res.Project,
			Location:   res.Location,
			Title:      res.Title,
			Outcome:    string(res.Outcome),
			DurationMs: res.DurationInMs,
			StartedAt:  r.StartedAt,
		})
	}

	return run, results
}
