package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
)

func newTestCollector(t *testing.T) (*Collector, store.Store, string) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	folder := filepath.Join(t.TempDir(), "report")
	st := store.New(log, &store.Config{Location: time.UTC})

	c := New(log, st, Options{
		Name:         "report.json",
		OutputFolder: folder,
		Projects:     []string{"chromium"},
		TestMatch:    regexp.MustCompile(`.*\.(spec|test|setup)\.(j|t|mj)s`),
	})

	return c, st, folder
}

func TestCollector_OnTestEnd(t *testing.T) {
	tests := []struct {
		name      string
		titlePath []string
		project   string
		location  string
		title     string
	}{
		{
			name:      "full title path",
			titlePath: []string{"", "chromium", "login.spec.ts", "auth", "logs in"},
			project:   "chromium",
			location:  "login.spec.ts:3:5",
			title:     "auth > logs in",
		},
		{
			name:      "unknown project",
			titlePath: []string{"", "webkit", "login.spec.ts", "logs in"},
			project:   "",
			location:  "login.spec.ts:3:5",
			title:     "webkit > logs in",
		},
		{
			name:      "no file segment",
			titlePath: []string{"chromium", "setup"},
			project:   "chromium",
			location:  ":3:5",
			title:     "setup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestCollector(t)

			c.OnTestEnd(TestCase{
				ID:        "id-1",
				TitlePath: tt.titlePath,
				Location:  Location{File: "/abs/login.spec.ts", Line: 3, Column: 5},
				Outcome:   report.OutcomeExpected,
			}, TestResult{Duration: 1500 * time.Microsecond})

			obs := c.Observations()
			require.Len(t, obs, 1)
			assert.Equal(t, report.Result{
				ID:           "id-1",
				Project:      tt.project,
				Location:     tt.location,
				Title:        tt.title,
				Outcome:      report.OutcomeExpected,
				DurationInMs: 1.5,
			}, obs[0])
		})
	}
}

func TestCollector_OnEndResolvesAndPersists(t *testing.T) {
	c, st, folder := newTestCollector(t)

	path := []string{"", "chromium", "a.spec.ts", "flaky test"}

	c.OnTestEnd(TestCase{ID: "a", TitlePath: path, Location: Location{Line: 1, Column: 1}, Outcome: report.OutcomeUnexpected},
		TestResult{Duration: time.Second})
	c.OnTestEnd(TestCase{ID: "b", TitlePath: []string{"", "chromium", "b.spec.ts", "ok"}, Location: Location{Line: 2, Column: 2}, Outcome: report.OutcomeExpected},
		TestResult{Duration: time.Second})
	c.OnTestEnd(TestCase{ID: "a", TitlePath: path, Location: Location{Line: 1, Column: 1}, Outcome: report.OutcomeExpected},
		TestResult{Duration: 2 * time.Second})

	start := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	r, err := c.OnEnd(FullResult{StartTime: start, Duration: 5 * time.Second, Status: report.StatusPassed})
	require.NoError(t, err)
	require.Len(t, r.Results, 2)
	assert.Equal(t, "a", r.Results[0].ID)
	assert.Equal(t, report.OutcomeExpected, r.Results[0].Outcome)
	assert.Equal(t, float64(2000), r.Results[0].DurationInMs)
	assert.Equal(t, "b", r.Results[1].ID)

	loaded, err := st.Load(filepath.Join(folder, "report.json"))
	require.NoError(t, err)
	assert.Equal(t, r, loaded)
}

func TestCollector_ConcurrentWorkers(t *testing.T) {
	c, _, _ := newTestCollector(t)

	var wg sync.WaitGroup

	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 25 {
				c.OnTestEnd(TestCase{
					ID:        fmt.Sprintf("w%d-t%d", w, i),
					TitlePath: []string{"chromium", "x.spec.ts", "t"},
					Outcome:   report.OutcomeExpected,
				}, TestResult{})
			}
		}()
	}

	wg.Wait()

	r, err := c.OnEnd(FullResult{StartTime: time.Now(), Status: report.StatusPassed})
	require.NoError(t, err)
	assert.Len(t, r.Results, 200)
}

func TestCollector_Ingest(t *testing.T) {
	c, _, _ := newTestCollector(t)

	stream := strings.Join([]string{
		`{"type":"test_end","id":"a","title_path":["","chromium","a.spec.ts","fails"],"location":{"file":"a.spec.ts","line":17,"column":5},"outcome":"unexpected","duration_ms":12.5}`,
		``,
		`{"type":"stdout","text":"noise"}`,
		`{"type":"test_end","id":"a","title_path":["","chromium","a.spec.ts","fails"],"location":{"file":"a.spec.ts","line":17,"column":5},"outcome":"unexpected","duration_ms":13}`,
		`{"type":"test_end","id":"b","title_path":["","chromium","a.spec.ts","passes"],"location":{"file":"a.spec.ts","line":3,"column":5},"outcome":"expected","duration_ms":4}`,
		`{"type":"run_end","start_time":1717245000000,"duration_ms":2500,"status":"failed"}`,
	}, "\n")

	r, err := c.Ingest(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, int64(1717245000000), r.StartedAt)
	assert.Equal(t, int64(2500), r.DurationInMs)
	assert.Equal(t, report.StatusFailed, r.Status)
	require.Len(t, r.Results, 2)
	assert.Equal(t, report.Result{
		ID:           "a",
		Project:      "chromium",
		Location:     "a.spec.ts:17:5",
		Title:        "fails",
		Outcome:      report.OutcomeUnexpected,
		DurationInMs: 12.5,
	}, r.Results[0])
	assert.Equal(t, []string{"a.spec.ts:17:5"}, r.Failures())
}

func TestCollector_IngestErrors(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr string
	}{
		{
			name:    "missing run_end",
			stream:  `{"type":"test_end","id":"a","outcome":"expected"}`,
			wantErr: ErrRunNotFinished.Error(),
		},
		{
			name:    "invalid json",
			stream:  `{"type":`,
			wantErr: "parsing event",
		},
		{
			name:    "unknown outcome",
			stream:  `{"type":"test_end","id":"a","outcome":"passed"}`,
			wantErr: "unknown outcome",
		},
		{
			name:    "missing id",
			stream:  `{"type":"test_end","outcome":"expected"}`,
			wantErr: "without id",
		},
		{
			name:    "fractional line",
			stream:  `{"type":"test_end","id":"a","location":{"file":"a.spec.ts","line":3.7,"column":5},"outcome":"expected"}`,
			wantErr: "3.7 is not an integer",
		},
		{
			name:    "fractional start time",
			stream:  `{"type":"run_end","start_time":1.5,"duration_ms":1,"status":"passed"}`,
			wantErr: "1.5 is not an integer",
		},
		{
			name:    "unknown status",
			stream:  `{"type":"run_end","start_time":1,"duration_ms":1,"status":"ok"}`,
			wantErr: "unknown status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestCollector(t)

			_, err := c.Ingest(context.Background(), strings.NewReader(tt.stream))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCollector_IngestCancelled(t *testing.T) {
	c, _, _ := newTestCollector(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Ingest(ctx, strings.NewReader(`{"type":"run_end","status":"passed"}`))
	require.ErrorIs(t, err, context.Canceled)
}
