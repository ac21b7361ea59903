package indexstore

import (
	"context"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for the run history.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListSnapshotNames(ctx context.Context) ([]string, error)

	ReplaceResults(
		ctx context.Context, snapshot string, results []*TestResult,
	) error
	ListTestHistory(
		ctx context.Context, testID string, limit int,
	) ([]TestResult, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new history Store backed by the configured database
// driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// A second connection to :memory: would see an empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&TestResult{},
	); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("History database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts or updates a run record keyed by snapshot name.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	result := s.db.WithContext(ctx).
		Where("snapshot = ?", run.Snapshot).
		Assign(run).
		FirstOrCreate(run)
	if result.Error != nil {
		return fmt.Errorf("upserting run: %w", result.Error)
	}

	return nil
}

// ListRuns returns runs newest first. A non-positive limit returns all.
func (s *store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListSnapshotNames returns the snapshot names already indexed.
func (s *store) ListSnapshotNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Pluck("snapshot", &names).Error; err != nil {
		return nil, fmt.Errorf("listing snapshot names: %w", err)
	}

	return names, nil
}

// ReplaceResults swaps the stored results of a snapshot for the given ones
// in a single transaction.
func (s *store) ReplaceResults(
	ctx context.Context, snapshot string, results []*TestResult,
) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("snapshot = ?", snapshot).
			Delete(&TestResult{}).Error; err != nil {
			return fmt.Errorf("deleting results for snapshot: %w", err)
		}

		if len(results) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(results, batchSize).Error; err != nil {
			return fmt.Errorf("bulk inserting results: %w", err)
		}

		return nil
	})
}

// ListTestHistory returns the results of one test across runs, newest
// first. A non-positive limit returns all.
func (s *store) ListTestHistory(
	ctx context.Context, testID string, limit int,
) ([]TestResult, error) {
	q := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var results []TestResult
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing test history: %w", err)
	}

	return results, nil
}
