package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/ethpandaops/reportoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Reader = (*s3Reader)(nil)

// objectReader is the subset of upload.S3Reader used here.
type objectReader interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type s3Reader struct {
	objects objectReader
	bucket  string
	prefix  string
}

// NewS3Reader creates a Reader backed by the bucket reports are
// published to.
func NewS3Reader(log logrus.FieldLogger, cfg *config.S3UploadConfig) Reader {
	return &s3Reader{
		objects: upload.NewS3Reader(log, cfg),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
	}
}

func (r *s3Reader) Describe() string {
	return fmt.Sprintf("s3://%s/%s", r.bucket, upload.ResolvePrefix(r.prefix))
}

// GetLatest reads {prefix}/latest.json.
func (r *s3Reader) GetLatest(ctx context.Context) ([]byte, error) {
	return r.objects.GetObject(ctx, upload.LatestObjectKey(r.prefix))
}

// ListSnapshots lists {prefix}/snapshots/report-*.json, newest first.
func (r *s3Reader) ListSnapshots(ctx context.Context) ([]string, error) {
	keys, err := r.objects.ListKeys(ctx, upload.SnapshotsPrefix(r.prefix))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))

	for _, k := range keys {
		if _, ok := store.MatchSnapshot(k); ok {
			names = append(names, k)
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	return names, nil
}

// GetSnapshot reads {prefix}/snapshots/{name}.
func (r *s3Reader) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	if _, ok := store.MatchSnapshot(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSnapshotName, name)
	}

	return r.objects.GetObject(ctx, upload.SnapshotKey(r.prefix, name))
}
