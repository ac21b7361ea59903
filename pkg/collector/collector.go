package collector

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// titleSeparator joins the remaining title path segments.
const titleSeparator = " > "

// Options configure a Collector. It is an immutable value passed in by the
// caller rather than read from global state.
type Options struct {
	// Name is the report filename inside OutputFolder.
	Name string
	// OutputFolder is the folder the report is written to.
	OutputFolder string
	// Projects are the known project names found in title paths.
	Projects []string
	// TestMatch identifies the file segment of a title path.
	TestMatch *regexp.Regexp
}

// Location is the declaration position of a test.
type Location struct {
	File   string `json:"file" mapstructure:"file"`
	Line   int    `json:"line" mapstructure:"line"`
	Column int    `json:"column" mapstructure:"column"`
}

// TestCase is the runner's description of a finished test.
type TestCase struct {
	ID        string
	TitlePath []string
	Location  Location
	Outcome   report.Outcome
}

// TestResult is the runner's description of one execution attempt.
type TestResult struct {
	Duration time.Duration
}

// FullResult is delivered once when the run completes.
type FullResult struct {
	StartTime time.Time
	Duration  time.Duration
	Status    report.Status
}

// Collector accumulates observations during a run and writes the canonical
// report when the run ends.
type Collector struct {
	log   logrus.FieldLogger
	opts  Options
	store store.Store

	mu           sync.Mutex
	observations []report.Result
}

// New creates a Collector.
func New(log logrus.FieldLogger, st store.Store, opts Options) *Collector {
	return &Collector{
		log:          log.WithField("component", "collector"),
		opts:         opts,
		store:        st,
		observations: make([]report.Result, 0, 64),
	}
}

// OnTestEnd records one observation. Safe for concurrent use by parallel
// workers.
func (c *Collector) OnTestEnd(tc TestCase, tr TestResult) {
	project := c.findProject(tc.TitlePath)
	file := c.findFile(tc.TitlePath)

	title := make([]string, 0, len(tc.TitlePath))

	for _, seg := range tc.TitlePath {
		if seg == "" || seg == project || seg == file {
			continue
		}

		title = append(title, seg)
	}

	result := report.Result{
		ID:           tc.ID,
		Project:      project,
		Location:     fmt.Sprintf("%s:%d:%d", file, tc.Location.Line, tc.Location.Column),
		Title:        strings.Join(title, titleSeparator),
		Outcome:      tc.Outcome,
		DurationInMs: float64(tr.Duration.Microseconds()) / 1000,
	}

	c.mu.Lock()
	c.observations = append(c.observations, result)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"id":       result.ID,
		"location": result.Location,
		"outcome":  result.Outcome,
	}).Debug("Test finished")
}

// OnEnd resolves all observations, builds the report and persists it.
func (c *Collector) OnEnd(full FullResult) (*report.Report, error) {
	c.mu.Lock()
	observations := slices.Clone(c.observations)
	c.mu.Unlock()

	resolved := report.Resolve(observations)

	r := report.Build(report.RunMeta{
		StartedAt: full.StartTime,
		Duration:  full.Duration,
		Status:    full.Status,
	}, resolved)

	if err := c.store.Persist(r, c.opts.OutputFolder, c.opts.Name); err != nil {
		return nil, fmt.Errorf("persisting report: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"path":         filepath.Join(c.opts.OutputFolder, c.opts.Name),
		"observations": len(observations),
		"results":      len(resolved),
		"status":       r.Status,
	}).Info("Report written")

	return r, nil
}

// Observations returns a copy of the observations recorded so far.
func (c *Collector) Observations() []report.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.observations)
}

// findProject returns the first title segment naming a known project.
func (c *Collector) findProject(titlePath []string) string {
	for _, seg := range titlePath {
		if seg != "" && slices.Contains(c.opts.Projects, seg) {
			return seg
		}
	}

	return ""
}

// findFile returns the first title segment matching the test file pattern.
func (c *Collector) findFile(titlePath []string) string {
	if c.opts.TestMatch == nil {
		return ""
	}

	for _, seg := range titlePath {
		if c.opts.TestMatch.MatchString(seg) {
			return seg
		}
	}

	return ""
}
