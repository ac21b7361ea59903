package indexstore

import "time"

// Run represents a single indexed report snapshot in the database.
type Run struct {
	ID         uint   `gorm:"primaryKey"`
	Snapshot   string `gorm:"not null;uniqueIndex"`
	StartedAt  int64  `gorm:"index"`
	DurationMs int64
	Status     string

	// Denormalized outcome tally.
	TestsTotal      int
	TestsExpected   int
	TestsUnexpected int
	TestsFlaky      int
	TestsSkipped    int

	IndexedAt time.Time
}

// TestResult is the canonical result of one test within a run.
type TestResult struct {
	ID         uint   `gorm:"primaryKey"`
	Snapshot   string `gorm:"not null;uniqueIndex:idx_tr_snapshot_test"`
	TestID     string `gorm:"not null;uniqueIndex:idx_tr_snapshot_test;index"`
	Project    string
	Location   string
	Title      string
	Outcome    string `gorm:"index"`
	DurationMs float64
	StartedAt  int64
}
