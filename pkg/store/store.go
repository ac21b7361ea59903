package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFilename is the canonical report filename.
	DefaultFilename = "report.json"

	// LatestFilename is the alias pointing at the newest snapshot.
	LatestFilename = "latest.json"

	// TimestampLayout renders yyyy-MM-ddThh-mm-ss. Every field is zero
	// padded so lexical order equals chronological order.
	TimestampLayout = "2006-01-02T15-04-05"

	snapshotPrefix = "report-"
)

var (
	// ErrNoMatchingReports is returned by LinkLatest when the folder holds no
	// timestamped snapshot.
	ErrNoMatchingReports = errors.New("no timestamped reports found")

	// ErrLatestReportAbsent is returned when the latest alias does not exist.
	ErrLatestReportAbsent = errors.New("latest report not found")

	// ErrMalformedTimestamp is returned when a snapshot name has the right
	// shape but its timestamp does not parse.
	ErrMalformedTimestamp = errors.New("malformed report timestamp")
)

// snapshotPattern matches report-<timestamp>.json snapshot files.
var snapshotPattern = regexp.MustCompile(
	`^report-(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2})\.json$`,
)

// Store persists reports and maintains their history on disk.
type Store interface {
	// Persist writes the report to folder/filename, creating folder if needed.
	Persist(r *report.Report, folder, filename string) error

	// Load reads and validates a report file.
	Load(path string) (*report.Report, error)

	// Archive copies folder into a sibling report-<timestamp> folder named
	// after the canonical report's start time. It is a no-op when there is
	// no canonical report or the archive folder already exists.
	Archive(folder string) (*ArchiveResult, error)

	// Snapshot copies the canonical report to folder/report-<timestamp>.json
	// unless that snapshot already exists. Returns the snapshot filename.
	Snapshot(folder string) (string, error)

	// LinkLatest points folder/latest.json at the newest snapshot and
	// returns the snapshot filename.
	LinkLatest(folder string) (string, error)

	// ReadLatest reads the report behind folder/latest.json.
	ReadLatest(folder string) (*report.Report, error)

	// ListSnapshots returns snapshots in folder, newest first.
	ListSnapshots(folder string) ([]Snapshot, error)
}

// Config configures a Store.
type Config struct {
	// Filename is the canonical report filename used by Archive and Snapshot.
	Filename string
	// Location is the zone timestamp labels are rendered in.
	Location *time.Location
	// Owner, when set, is applied to every file and folder the store creates.
	Owner *fsutil.OwnerConfig
}

// ArchiveResult describes the outcome of an Archive call.
type ArchiveResult struct {
	Path     string
	Archived bool
}

// Snapshot is a timestamped report file.
type Snapshot struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg Config
}

// New creates a filesystem backed Store.
func New(log logrus.FieldLogger, cfg *Config) Store {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	if c.Filename == "" {
		c.Filename = DefaultFilename
	}

	if c.Location == nil {
		c.Location = time.Local
	}

	return &store{
		log: log.WithField("component", "store"),
		cfg: c,
	}
}

// FormatTimestamp renders an epoch-millisecond start time as a snapshot label.
func FormatTimestamp(startedAt int64, loc *time.Location) string {
	return time.UnixMilli(startedAt).In(loc).Format(TimestampLayout)
}

// ParseTimestamp parses a snapshot label.
func ParseTimestamp(label string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, label, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, label, err)
	}

	return t, nil
}

// SnapshotName returns the snapshot filename for a timestamp label.
func SnapshotName(label string) string {
	return snapshotPrefix + label + ".json"
}

// MatchSnapshot returns the timestamp label of a snapshot filename.
func MatchSnapshot(name string) (string, bool) {
	m := snapshotPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}

	return m[1], true
}

// Persist writes the report as indented JSON.
func (s *store) Persist(r *report.Report, folder, filename string) error {
	if err := fsutil.MkdirAll(folder, 0o755, s.cfg.Owner); err != nil {
		return fmt.Errorf("creating report folder: %w", err)
	}

	data, err := report.Encode(r)
	if err != nil {
		return err
	}

	path := filepath.Join(folder, filename)

	if err := fsutil.WriteFile(path, data, 0o644, s.cfg.Owner); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}

	s.log.WithFields(logrus.Fields{
		"path":    path,
		"results": len(r.Results),
		"status":  r.Status,
	}).Debug("Report written")

	return nil
}

// Load reads and validates a report file.
func (s *store) Load(path string) (*report.Report, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from configuration
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	r, err := report.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return r, nil
}

// Archive copies the report folder into <parent>/report-<timestamp>.
func (s *store) Archive(folder string) (*ArchiveResult, error) {
	canonical := filepath.Join(folder, s.cfg.Filename)

	ok, err := fsutil.Exists(canonical)
	if err != nil {
		return nil, fmt.Errorf("checking canonical report: %w", err)
	}

	if !ok {
		s.log.WithField("path", canonical).Info("No report to archive")

		return &ArchiveResult{}, nil
	}

	r, err := s.Load(canonical)
	if err != nil {
		return nil, err
	}

	src, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving report folder: %w", err)
	}

	label := FormatTimestamp(r.StartedAt, s.cfg.Location)
	parent := filepath.Dir(src)
	target := filepath.Join(parent, snapshotPrefix+label)

	if isWithin(src, target) {
		return nil, fmt.Errorf("archive folder %s is inside report folder %s", target, src)
	}

	exists, err := fsutil.Exists(target)
	if err != nil {
		return nil, fmt.Errorf("checking archive folder: %w", err)
	}

	if exists {
		s.log.WithField("path", target).Info("Report already archived")

		return &ArchiveResult{Path: target}, nil
	}

	// Copy into a temporary sibling so target only ever holds a complete copy.
	tmp, err := os.MkdirTemp(parent, "."+snapshotPrefix+label+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary archive folder: %w", err)
	}

	err = s.fillArchive(src, tmp)
	if err == nil {
		if err = os.Rename(tmp, target); err != nil {
			err = fmt.Errorf("finalizing archive folder: %w", err)
		}
	}

	if err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			s.log.WithError(rmErr).WithField("path", tmp).Warn("Failed to remove partial archive")
		}

		return nil, err
	}

	s.log.WithField("path", target).Info("Report archived")

	return &ArchiveResult{Path: target, Archived: true}, nil
}

// fillArchive copies src into the temporary folder tmp.
func (s *store) fillArchive(src, tmp string) error {
	if err := os.Chmod(tmp, 0o755); err != nil {
		return fmt.Errorf("setting archive folder mode: %w", err)
	}

	fsutil.Chown(tmp, s.cfg.Owner)

	if err := fsutil.CopyDir(src, tmp, s.cfg.Owner); err != nil {
		return fmt.Errorf("copying report folder: %w", err)
	}

	return nil
}

// isWithin reports whether path equals dir or lies below it.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Snapshot copies the canonical report to a timestamped file in folder.
func (s *store) Snapshot(folder string) (string, error) {
	canonical := filepath.Join(folder, s.cfg.Filename)

	r, err := s.Load(canonical)
	if err != nil {
		return "", err
	}

	name := SnapshotName(FormatTimestamp(r.StartedAt, s.cfg.Location))
	target := filepath.Join(folder, name)

	exists, err := fsutil.Exists(target)
	if err != nil {
		return "", fmt.Errorf("checking snapshot: %w", err)
	}

	if exists {
		s.log.WithField("snapshot", name).Debug("Snapshot already exists")

		return name, nil
	}

	if err := fsutil.CopyFile(canonical, target, s.cfg.Owner); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	s.log.WithField("snapshot", name).Info("Snapshot created")

	return name, nil
}

// ListSnapshots returns the snapshots in folder, newest first.
func (s *store) ListSnapshots(folder string) ([]Snapshot, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading report folder: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		label, ok := MatchSnapshot(entry.Name())
		if !ok {
			continue
		}

		ts, err := ParseTimestamp(label, s.cfg.Location)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, Snapshot{Name: entry.Name(), Timestamp: ts})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name > snapshots[j].Name
	})

	return snapshots, nil
}

// LinkLatest repoints folder/latest.json at the newest snapshot.
func (s *store) LinkLatest(folder string) (string, error) {
	snapshots, err := s.ListSnapshots(folder)
	if err != nil {
		return "", err
	}

	if len(snapshots) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoMatchingReports, folder)
	}

	newest := snapshots[0].Name
	alias := filepath.Join(folder, LatestFilename)

	if current, err := os.Readlink(alias); err == nil && current == newest {
		s.log.WithField("target", newest).Debug("Latest alias already up to date")

		return newest, nil
	}

	if err := os.Remove(alias); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("removing previous alias: %w", err)
	}

	if err := os.Symlink(newest, alias); err != nil {
		// Fall back to a copy where symlinks are unavailable.
		s.log.WithError(err).Warn("Symlink failed, copying snapshot instead")

		if err := fsutil.CopyFile(filepath.Join(folder, newest), alias, s.cfg.Owner); err != nil {
			return "", fmt.Errorf("creating latest alias: %w", err)
		}

		return newest, nil
	}

	fsutil.Chown(alias, s.cfg.Owner)

	s.log.WithField("target", newest).Info("Latest alias updated")

	return newest, nil
}

// ReadLatest reads the report behind folder/latest.json.
func (s *store) ReadLatest(folder string) (*report.Report, error) {
	alias := filepath.Join(folder, LatestFilename)

	if _, err := os.Stat(alias); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLatestReportAbsent, alias)
		}

		return nil, fmt.Errorf("checking latest alias: %w", err)
	}

	return s.Load(alias)
}
