package upload

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of parallel PutObject calls when no
// explicit concurrency is configured.
const defaultConcurrency = 4

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: NewS3Client(cfg),
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("reportoor write test: %s", time.Now().UTC().Format(time.RFC3339))
	body := strings.NewReader(content)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(ResolvePrefix(u.cfg.Prefix) + "/.reportoor-write-test"),
		Body:        body,
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

// Upload walks localDir and uploads all files with bounded parallelism.
func (u *s3Uploader) Upload(ctx context.Context, localDir string) error {
	prefix := ArchivePrefix(u.cfg.Prefix, filepath.Base(filepath.Clean(localDir)))

	type fileTask struct {
		path string
		key  string
	}

	var tasks []fileTask

	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(localDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		tasks = append(tasks, fileTask{
			path: path,
			key:  prefix + "/" + filepath.ToSlash(relPath),
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("walking directory %s: %w", localDir, err)
	}

	concurrency := u.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var count atomic.Int64

	for _, task := range tasks {
		g.Go(func() error {
			if err := u.uploadFile(gCtx, task.path, task.key); err != nil {
				return fmt.Errorf("uploading %s: %w", task.path, err)
			}

			count.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	u.log.WithFields(logrus.Fields{
		"files":  count.Load(),
		"bucket": u.cfg.Bucket,
		"prefix": prefix,
	}).Info("Upload completed")

	return nil
}

// PublishSnapshot uploads one snapshot and optionally mirrors it as latest.
func (u *s3Uploader) PublishSnapshot(ctx context.Context, snapshotPath string, latest bool) error {
	name := filepath.Base(snapshotPath)

	if err := u.uploadFile(ctx, snapshotPath, SnapshotKey(u.cfg.Prefix, name)); err != nil {
		return fmt.Errorf("uploading snapshot %s: %w", name, err)
	}

	if latest {
		if err := u.uploadFile(ctx, snapshotPath, LatestObjectKey(u.cfg.Prefix)); err != nil {
			return fmt.Errorf("uploading latest alias: %w", err)
		}
	}

	u.log.WithFields(logrus.Fields{
		"snapshot": name,
		"latest":   latest,
		"bucket":   u.cfg.Bucket,
	}).Info("Snapshot published")

	return nil
}

// uploadFile uploads a single file to S3.
func (u *s3Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath) //nolint:gosec // local report files
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	_, err = u.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// ResolvePrefix returns the configured prefix without trailing slashes.
func ResolvePrefix(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return strings.TrimRight(prefix, "/")
}

// ArchivePrefix builds the key prefix for an archived report folder.
func ArchivePrefix(prefix, baseName string) string {
	return ResolvePrefix(prefix) + "/" + archiveDir + "/" + baseName
}

// SnapshotsPrefix is the key prefix under which snapshots are stored.
func SnapshotsPrefix(prefix string) string {
	return ResolvePrefix(prefix) + "/" + snapshotsDir + "/"
}

// SnapshotKey builds the key of a snapshot file.
func SnapshotKey(prefix, name string) string {
	return SnapshotsPrefix(prefix) + name
}

// LatestObjectKey builds the key of the latest alias object.
func LatestObjectKey(prefix string) string {
	return ResolvePrefix(prefix) + "/" + LatestKey
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
