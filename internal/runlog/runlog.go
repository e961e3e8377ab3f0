// Package runlog persists factor run results as flat CSV files under one
// root directory: an append-only summary file per factor plus one
// write-once time-series file per (factor, run) pair.
package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"factorflow/internal/apperr"
	"factorflow/internal/metrics"
	"factorflow/logger"
)

// runColumns is the summary file header. Appended rows follow this order;
// loads tolerate files written with older column sets.
var runColumns = []string{
	"run_id",
	"factor",
	"breakpoint",
	"min_assets",
	"weighting_method",
	"cumulative_returns",
	"annualized_return",
	"years",
	"sharpe_ratio",
	"sortino_ratio",
	"long_only_returns",
	"short_only_returns",
	"start_date",
	"end_date",
}

var timeSeriesColumns = []string{"date", "return", "cumulative_return"}

// RunRecord is one appended run for a factor. Pointer fields are optional:
// nil serializes to an empty CSV cell and to JSON null.
type RunRecord struct {
	RunID             string   `json:"run_id"`
	Factor            string   `json:"factor"`
	Breakpoint        *float64 `json:"breakpoint"`
	MinAssets         *int     `json:"min_assets"`
	WeightingMethod   string   `json:"weighting_method"`
	CumulativeReturns *float64 `json:"cumulative_returns"`
	AnnualizedReturn  *float64 `json:"annualized_return"`
	Years             *float64 `json:"years"`
	SharpeRatio       *float64 `json:"sharpe_ratio"`
	SortinoRatio      *float64 `json:"sortino_ratio"`
	LongOnlyReturns   *float64 `json:"long_only_returns"`
	ShortOnlyReturns  *float64 `json:"short_only_returns"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
}

// TimeSeries holds one run's per-date return series.
type TimeSeries struct {
	Dates             []string  `json:"dates"`
	Returns           []float64 `json:"returns"`
	CumulativeReturns []float64 `json:"cumulative_returns"`
}

// Store reads and writes run logs under a single directory.
type Store struct {
	dir string
	log *logger.Log

	// appendMu serializes appends so only one writer can observe an empty
	// file and write the header.
	appendMu sync.Mutex
}

// NewStore creates the logs directory if needed and returns a store over it.
func NewStore(dir string, log *logger.Log) (*Store, error) {
	if dir == "" {
		return nil, apperr.InvalidInput("logs directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// NewRunID returns a time-prefixed unique run id. The timestamp prefix gives
// best-effort lexical ordering by creation time; the uuid suffix breaks ties
// within the same second.
func NewRunID() string {
	return fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString())
}

// AppendRun appends one row to the factor's summary file, writing the header
// first if the file is empty. The file is opened in append mode so concurrent
// appends cannot interleave within a row.
func (s *Store) AppendRun(rec RunRecord) error {
	if err := validateName(rec.Factor); err != nil {
		return err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	path := s.runFilePath(rec.Factor)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log %s: %w", path, err)
	}
	defer f.Close()

	// Newness is decided from the opened descriptor, not a prior stat, so
	// the header is written exactly once.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat run log %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(runColumns); err != nil {
			return fmt.Errorf("writing run log header: %w", err)
		}
	}
	row := []string{
		rec.RunID,
		rec.Factor,
		optFloat(rec.Breakpoint),
		optInt(rec.MinAssets),
		rec.WeightingMethod,
		optFloat(rec.CumulativeReturns),
		optFloat(rec.AnnualizedReturn),
		optFloat(rec.Years),
		optFloat(rec.SharpeRatio),
		optFloat(rec.SortinoRatio),
		optFloat(rec.LongOnlyReturns),
		optFloat(rec.ShortOnlyReturns),
		rec.StartDate,
		rec.EndDate,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing run log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing run log: %w", err)
	}

	metrics.EmitRunAppended(s.log, rec.Factor)
	s.log.WithComponent("runlog").WithFields(logger.Fields{
		"factor": rec.Factor,
		"run_id": rec.RunID,
	}).Info("appended run record")
	return nil
}

// LoadRuns returns all runs for a factor in append order. A factor with no
// file yet yields an empty slice. Unparsable optional cells degrade to nil
// rather than failing the read.
func (s *Store) LoadRuns(factor string) ([]RunRecord, error) {
	if err := validateName(factor); err != nil {
		return nil, err
	}

	f, err := os.Open(s.runFilePath(factor))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunRecord{}, nil
		}
		return nil, fmt.Errorf("opening run log for %s: %w", factor, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, apperr.Parse("reading run log for %s: %v", factor, err)
	}
	if len(rows) == 0 {
		return []RunRecord{}, nil
	}

	cols := indexColumns(rows[0])
	records := make([]RunRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		rec := RunRecord{
			RunID:             cell("run_id"),
			Factor:            cell("factor"),
			Breakpoint:        parseOptFloat(cell("breakpoint")),
			MinAssets:         parseOptInt(cell("min_assets")),
			WeightingMethod:   cell("weighting_method"),
			CumulativeReturns: parseOptFloat(cell("cumulative_returns")),
			AnnualizedReturn:  parseOptFloat(cell("annualized_return")),
			Years:             parseOptFloat(cell("years")),
			SharpeRatio:       parseOptFloat(cell("sharpe_ratio")),
			SortinoRatio:      parseOptFloat(cell("sortino_ratio")),
			LongOnlyReturns:   parseOptFloat(cell("long_only_returns")),
			ShortOnlyReturns:  parseOptFloat(cell("short_only_returns")),
			StartDate:         cell("start_date"),
			EndDate:           cell("end_date"),
		}
		if rec.Factor == "" {
			rec.Factor = factor
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveTimeSeries writes one run's full series as a fresh file. The three
// slices must be equal length. The write goes through a temp file and rename
// so readers never observe a partial series.
func (s *Store) SaveTimeSeries(factor, runID string, dates []string, returns, cumulativeReturns []float64) error {
	if err := validateName(factor); err != nil {
		return err
	}
	if err := validateName(runID); err != nil {
		return err
	}
	if len(dates) != len(returns) || len(dates) != len(cumulativeReturns) {
		return apperr.InvalidInput("time series lengths mismatch: %d dates, %d returns, %d cumulative",
			len(dates), len(returns), len(cumulativeReturns))
	}

	path := s.timeSeriesPath(factor, runID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp time series file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(timeSeriesColumns); err != nil {
		tmp.Close()
		return fmt.Errorf("writing time series header: %w", err)
	}
	for i := range dates {
		row := []string{
			dates[i],
			strconv.FormatFloat(returns[i], 'f', -1, 64),
			strconv.FormatFloat(cumulativeReturns[i], 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("writing time series row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing time series: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp time series file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming time series file: %w", err)
	}

	s.log.WithComponent("runlog").WithFields(logger.Fields{
		"factor": factor,
		"run_id": runID,
		"points": len(dates),
	}).Info("saved time series")
	return nil
}

// LoadTimeSeries reads one run's series. A missing file is NotFound: absence
// of time-series detail is meaningful, unlike the empty-history case in
// LoadRuns. Rows with unparsable numeric cells are skipped.
func (s *Store) LoadTimeSeries(factor, runID string) (TimeSeries, error) {
	if err := validateName(factor); err != nil {
		return TimeSeries{}, err
	}
	if err := validateName(runID); err != nil {
		return TimeSeries{}, err
	}

	f, err := os.Open(s.timeSeriesPath(factor, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return TimeSeries{}, apperr.NotFound("time series not found for %s run %s", factor, runID)
		}
		return TimeSeries{}, fmt.Errorf("opening time series for %s: %w", factor, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return TimeSeries{}, apperr.Parse("reading time series for %s: %v", factor, err)
	}
	if len(rows) == 0 {
		return TimeSeries{}, nil
	}

	cols := indexColumns(rows[0])
	var ts TimeSeries
	for _, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		date := cell("date")
		ret, retErr := strconv.ParseFloat(cell("return"), 64)
		cum, cumErr := strconv.ParseFloat(cell("cumulative_return"), 64)
		if date == "" || retErr != nil || cumErr != nil {
			continue
		}
		ts.Dates = append(ts.Dates, date)
		ts.Returns = append(ts.Returns, ret)
		ts.CumulativeReturns = append(ts.CumulativeReturns, cum)
	}
	return ts, nil
}

func (s *Store) runFilePath(factor string) string {
	return filepath.Join(s.dir, factor+".csv")
}

func (s *Store) timeSeriesPath(factor, runID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_returns.csv", factor, runID))
}

// validateName restricts factor names and run ids to a filename-safe
// alphabet, keeping user input from escaping the logs directory.
func validateName(name string) error {
	if name == "" {
		return apperr.InvalidInput("empty name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return apperr.InvalidInput("invalid character %q in name %q", r, name)
		}
	}
	return nil
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, name := range header {
		m[name] = i
	}
	return m
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseOptInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
