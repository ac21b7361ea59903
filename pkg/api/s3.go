package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

// presignCacheEntry holds a cached presigned URL and its expiration time.
type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// s3Presigner generates presigned GET URLs for archived report files.
type s3Presigner struct {
	log      logrus.FieldLogger
	bucket   string
	prefix   string
	client   *s3.PresignClient
	expiry   time.Duration
	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]presignCacheEntry
}

// newS3Presigner creates a new S3 presigner for the upload bucket.
func newS3Presigner(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
	expiry time.Duration,
) *s3Presigner {
	return &s3Presigner{
		log:      log.WithField("component", "s3-presigner"),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		client:   s3.NewPresignClient(upload.NewS3Client(cfg)),
		expiry:   expiry,
		cacheTTL: expiry / 2,
		cache:    make(map[string]presignCacheEntry),
	}
}

// GeneratePresignedURL returns a presigned GET URL for an archive file.
// Results are cached for half the expiry so handed out URLs always have
// sufficient validity left.
func (p *s3Presigner) GeneratePresignedURL(
	ctx context.Context,
	filePath string,
) (string, error) {
	if !isAllowedArchivePath(filePath) {
		return "", fmt.Errorf("path %q is not allowed", filePath)
	}

	key := upload.ResolvePrefix(p.prefix) + "/archive/" + filePath
	now := time.Now()

	// Fast path: check cache under read lock.
	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	// Slow path: acquire write lock and double-check.
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	result, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning URL for %q: %w", key, err)
	}

	p.evictExpired(now)

	p.cache[key] = presignCacheEntry{
		url:       result.URL,
		expiresAt: now.Add(p.cacheTTL),
	}

	return result.URL, nil
}

// evictExpired drops cache entries past their expiry. Callers hold p.mu.
func (p *s3Presigner) evictExpired(now time.Time) {
	for key, entry := range p.cache {
		if !now.Before(entry.expiresAt) {
			delete(p.cache, key)
		}
	}
}
