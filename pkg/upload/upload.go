package upload

import "context"

const (
	// DefaultPrefix is the key prefix used when none is configured.
	DefaultPrefix = "reports"

	// LatestKey is the object mirroring the newest snapshot.
	LatestKey = "latest.json"

	snapshotsDir = "snapshots"
	archiveDir   = "archive"
)

// Uploader publishes reports to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in localDir, typically an archived report
	// folder. The directory basename is used as a sub-prefix under
	// prefix + "/archive/".
	Upload(ctx context.Context, localDir string) error

	// PublishSnapshot uploads a snapshot file to prefix + "/snapshots/" and,
	// when latest is set, mirrors it to prefix + "/latest.json".
	PublishSnapshot(ctx context.Context, snapshotPath string, latest bool) error
}
