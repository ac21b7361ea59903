package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/store"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	store  store.Store
	folder string
}

// NewLocalReader creates a Reader backed by a local report folder.
func NewLocalReader(st store.Store, folder string) Reader {
	return &localReader{store: st, folder: folder}
}

func (r *localReader) Describe() string {
	return r.folder
}

// GetLatest reads {folder}/latest.json, following the alias.
func (r *localReader) GetLatest(_ context.Context) ([]byte, error) {
	return readOptional(filepath.Join(r.folder, store.LatestFilename))
}

// ListSnapshots returns {folder}/report-*.json names, newest first.
func (r *localReader) ListSnapshots(_ context.Context) ([]string, error) {
	snapshots, err := r.store.ListSnapshots(r.folder)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		names = append(names, s.Name)
	}

	return names, nil
}

// GetSnapshot reads {folder}/{name}.
func (r *localReader) GetSnapshot(_ context.Context, name string) ([]byte, error) {
	if _, ok := store.MatchSnapshot(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSnapshotName, name)
	}

	return readOptional(filepath.Join(r.folder, name))
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from validated names
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, nil
}
