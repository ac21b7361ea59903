package storage

import (
	"context"
	"errors"
)

// ErrInvalidSnapshotName is returned when a requested name is not a
// report-<timestamp>.json snapshot filename.
var ErrInvalidSnapshotName = errors.New("invalid snapshot name")

// Reader provides read access to published reports stored in a backend
// (local report folder or S3). It is used by the indexer, the API and the
// failure selector without knowing the underlying storage details.
type Reader interface {
	// GetLatest reads the report behind the latest alias.
	// Returns (nil, nil) when no latest report exists.
	GetLatest(ctx context.Context) ([]byte, error)

	// ListSnapshots returns snapshot filenames, newest first.
	ListSnapshots(ctx context.Context) ([]string, error)

	// GetSnapshot reads a single snapshot.
	// Returns (nil, nil) when the snapshot does not exist.
	GetSnapshot(ctx context.Context, name string) ([]byte, error)

	// Describe returns a human readable location for logs.
	Describe() string
}
