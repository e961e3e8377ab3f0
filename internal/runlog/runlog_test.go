package runlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"factorflow/internal/apperr"
	"factorflow/internal/metrics"
	"factorflow/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), logger.Logger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func f64(v float64) *float64 { return &v }

func intp(v int) *int { return &v }

func sampleRecord(runID string) RunRecord {
	return RunRecord{
		RunID:             runID,
		Factor:            "smb",
		Breakpoint:        f64(0.3),
		MinAssets:         intp(30),
		WeightingMethod:   "equal",
		CumulativeReturns: f64(0.5),
		AnnualizedReturn:  f64(0.15),
		Years:             f64(2.5),
		SharpeRatio:       f64(1.2),
		SortinoRatio:      f64(1.3),
		LongOnlyReturns:   f64(0.3),
		ShortOnlyReturns:  f64(0.2),
		StartDate:         "2023-01-01",
		EndDate:           "2023-12-31",
	}
}

func TestNewRunIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f-]{36}$`)
	a, b := NewRunID(), NewRunID()
	for _, id := range []string{a, b} {
		if !pattern.MatchString(id) {
			t.Errorf("run id %q does not match expected shape", id)
		}
	}
	if a == b {
		t.Errorf("two run ids collided: %q", a)
	}
}

func TestAppendAndLoadRuns(t *testing.T) {
	s := testStore(t)

	rec := sampleRecord(NewRunID())
	if err := s.AppendRun(rec); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := s.LoadRuns("smb")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d runs, want 1", len(got))
	}
	r := got[0]
	if r.RunID != rec.RunID || r.Factor != "smb" || r.WeightingMethod != "equal" {
		t.Errorf("round trip mismatch: %+v", r)
	}
	if r.Breakpoint == nil || *r.Breakpoint != 0.3 {
		t.Errorf("breakpoint = %v, want 0.3", r.Breakpoint)
	}
	if r.MinAssets == nil || *r.MinAssets != 30 {
		t.Errorf("min_assets = %v, want 30", r.MinAssets)
	}
	if r.SharpeRatio == nil || *r.SharpeRatio != 1.2 {
		t.Errorf("sharpe = %v, want 1.2", r.SharpeRatio)
	}
	if r.StartDate != "2023-01-01" || r.EndDate != "2023-12-31" {
		t.Errorf("date range %q..%q", r.StartDate, r.EndDate)
	}
}

func TestAppendRunAccumulatesInOrder(t *testing.T) {
	s := testStore(t)

	ids := []string{"run-a", "run-b", "run-c"}
	for _, id := range ids {
		rec := sampleRecord(id)
		if err := s.AppendRun(rec); err != nil {
			t.Fatalf("AppendRun(%s): %v", id, err)
		}
	}

	got, err := s.LoadRuns("smb")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("got %d runs, want %d", len(got), len(ids))
	}
	for i, id := range ids {
		if got[i].RunID != id {
			t.Errorf("run %d = %q, want %q", i, got[i].RunID, id)
		}
	}
}

func TestAppendRunOptionalFieldsEmpty(t *testing.T) {
	s := testStore(t)

	if err := s.AppendRun(RunRecord{RunID: "bare", Factor: "momentum"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := s.LoadRuns("momentum")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d runs, want 1", len(got))
	}
	r := got[0]
	if r.Breakpoint != nil || r.MinAssets != nil || r.SharpeRatio != nil {
		t.Errorf("absent fields did not load as nil: %+v", r)
	}
}

func TestAppendRunCountsAppends(t *testing.T) {
	metrics.Reset()
	s := testStore(t)

	if err := s.AppendRun(sampleRecord("run-a")); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if err := s.AppendRun(sampleRecord("run-b")); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	if got := metrics.Snapshot().RunsAppended; got != 2 {
		t.Errorf("RunsAppended = %d, want 2", got)
	}
}

func TestAppendRunWritesHeaderIntoEmptyFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, logger.Logger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	// A pre-existing empty file must still get the header on first append.
	if err := os.WriteFile(filepath.Join(dir, "smb.csv"), nil, 0o644); err != nil {
		t.Fatalf("seeding empty file: %v", err)
	}
	if err := s.AppendRun(sampleRecord("run-a")); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "smb.csv"))
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "run_id,factor,") {
		t.Errorf("first line is not the header: %q", lines[0])
	}

	got, err := s.LoadRuns("smb")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-a" {
		t.Fatalf("round trip after empty-file append: %+v", got)
	}
}

func TestAppendRunConcurrentFirstAppends(t *testing.T) {
	s := testStore(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.AppendRun(sampleRecord(fmt.Sprintf("run-%d", i)))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("AppendRun %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, "smb.csv"))
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	headerCount := strings.Count(string(data), "run_id,factor,")
	if headerCount != 1 {
		t.Fatalf("got %d header lines, want exactly 1:\n%s", headerCount, data)
	}

	got, err := s.LoadRuns("smb")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != writers {
		t.Fatalf("got %d runs, want %d", len(got), writers)
	}
	for _, r := range got {
		if r.RunID == "" || r.Factor != "smb" {
			t.Errorf("corrupt record after concurrent appends: %+v", r)
		}
	}
}

func TestLoadRunsMissingFactorIsEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.LoadRuns("value")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d runs for unknown factor, want 0", len(got))
	}
}

func TestLoadRunsUnparsableCellDegrades(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, logger.Logger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	csv := strings.Join([]string{
		"run_id,factor,breakpoint,min_assets,weighting_method,cumulative_returns,annualized_return,years,sharpe_ratio,sortino_ratio,long_only_returns,short_only_returns,start_date,end_date",
		"run-x,growth,oops,thirty,equal,0.4,,,1.1,,,,2023-01-01,2023-12-31",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "growth.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	got, err := s.LoadRuns("growth")
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d runs, want 1", len(got))
	}
	r := got[0]
	if r.Breakpoint != nil || r.MinAssets != nil {
		t.Errorf("unparsable cells should load as nil, got %+v", r)
	}
	if r.CumulativeReturns == nil || *r.CumulativeReturns != 0.4 {
		t.Errorf("valid cell lost: %v", r.CumulativeReturns)
	}
}

func TestSaveAndLoadTimeSeries(t *testing.T) {
	s := testStore(t)

	dates := []string{"2023-01-01", "2023-01-08"}
	returns := []float64{0.01, 0.02}
	cumulative := []float64{0.01, 0.0302}
	if err := s.SaveTimeSeries("smb", "run-1", dates, returns, cumulative); err != nil {
		t.Fatalf("SaveTimeSeries: %v", err)
	}

	ts, err := s.LoadTimeSeries("smb", "run-1")
	if err != nil {
		t.Fatalf("LoadTimeSeries: %v", err)
	}
	if len(ts.Dates) != 2 || ts.Dates[0] != "2023-01-01" || ts.Dates[1] != "2023-01-08" {
		t.Errorf("dates = %v", ts.Dates)
	}
	if ts.Returns[0] != 0.01 || ts.Returns[1] != 0.02 {
		t.Errorf("returns = %v", ts.Returns)
	}
	if ts.CumulativeReturns[1] != 0.0302 {
		t.Errorf("cumulative = %v", ts.CumulativeReturns)
	}
}

func TestSaveTimeSeriesLengthMismatch(t *testing.T) {
	s := testStore(t)
	err := s.SaveTimeSeries("smb", "run-1", []string{"2023-01-01"}, []float64{0.01, 0.02}, []float64{0.01})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestSaveTimeSeriesOverwrites(t *testing.T) {
	s := testStore(t)

	if err := s.SaveTimeSeries("smb", "run-1", []string{"2023-01-01"}, []float64{0.5}, []float64{0.5}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveTimeSeries("smb", "run-1", []string{"2023-02-01"}, []float64{0.7}, []float64{0.7}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	ts, err := s.LoadTimeSeries("smb", "run-1")
	if err != nil {
		t.Fatalf("LoadTimeSeries: %v", err)
	}
	if len(ts.Dates) != 1 || ts.Dates[0] != "2023-02-01" {
		t.Errorf("second save did not replace series: %v", ts.Dates)
	}
}

func TestLoadTimeSeriesMissingIsNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.LoadTimeSeries("smb", "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestNameValidationRejectsTraversal(t *testing.T) {
	s := testStore(t)
	for _, bad := range []string{"", "../etc", "a/b", "a b", "smb\x00"} {
		if err := s.AppendRun(RunRecord{RunID: "r", Factor: bad}); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("factor %q: got %v, want ErrInvalidInput", bad, err)
		}
		if _, err := s.LoadTimeSeries("smb", bad); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("run id %q: got %v, want ErrInvalidInput", bad, err)
		}
	}
}
