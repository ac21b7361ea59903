package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/api/indexer"
	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
)

func writeSnapshot(t *testing.T, st store.Store, dir string, start time.Time, results ...report.Result) {
	t.Helper()

	r := report.Build(report.RunMeta{StartedAt: start, Duration: time.Second, Status: report.StatusPassed}, results)
	require.NoError(t, st.Persist(r, dir, store.DefaultFilename))

	_, err := st.Snapshot(dir)
	require.NoError(t, err)
}

func setup(t *testing.T) (indexer.Indexer, indexstore.Store, store.Store, string) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	st := store.New(log, &store.Config{Location: time.UTC})

	db := indexstore.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, db.Start(context.Background()))
	t.Cleanup(func() { _ = db.Stop() })

	idx := indexer.NewIndexer(log, db, storage.NewLocalReader(st, dir), time.Minute, 2)

	return idx, db, st, dir
}

func TestIndexer_RunOnce(t *testing.T) {
	idx, db, st, dir := setup(t)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	writeSnapshot(t, st, dir, jan,
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeExpected},
		report.Result{ID: "b", Location: "b.spec.ts:1:1", Outcome: report.OutcomeUnexpected},
	)
	writeSnapshot(t, st, dir, feb,
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeFlaky},
	)

	count, err := idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "report-2024-02-01T00-00-00.json", runs[0].Snapshot)
	assert.Equal(t, 1, runs[0].TestsFlaky)
	assert.Equal(t, 2, runs[1].TestsTotal)
	assert.Equal(t, 1, runs[1].TestsUnexpected)

	history, err := db.ListTestHistory(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "flaky", history[0].Outcome)
	assert.Equal(t, "expected", history[1].Outcome)

	// A second pass finds nothing new.
	count, err = idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIndexer_SkipsUndecodableSnapshot(t *testing.T) {
	idx, db, st, dir := setup(t)
	ctx := context.Background()

	writeSnapshot(t, st, dir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Outcome: report.OutcomeExpected},
	)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "report-2024-03-01T00-00-00.json"), []byte("not json"), 0o644,
	))

	count, err := idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	names, err := db.ListSnapshotNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"report-2024-01-01T00-00-00.json"}, names)
}

func TestIndexer_StartStop(t *testing.T) {
	idx, db, st, dir := setup(t)

	writeSnapshot(t, st, dir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Outcome: report.OutcomeExpected},
	)

	require.NoError(t, idx.Start(context.Background()))

	assert.Eventually(t, func() bool {
		names, err := db.ListSnapshotNames(context.Background())

		return err == nil && len(names) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, idx.Stop())
}
