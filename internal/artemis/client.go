// Package artemis talks to the on-chain metrics provider. It lists the
// symbol universe and fetches multi-metric time series in fixed-size batches
// under a bounded number of in-flight requests.
package artemis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "factorflow/config"
	"factorflow/internal/apperr"
	"factorflow/internal/metrics"
	"factorflow/internal/table"
	"factorflow/logger"
)

// Client is the metrics-provider API client. The zero value is not usable;
// construct with NewClient.
type Client struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	batchSize int
	// gate bounds the number of batch requests in flight. Each batch
	// acquires a slot before issuing its request and releases it on every
	// exit path.
	gate chan struct{}
	log  *logger.Log
}

// symbolDenylist holds identifiers that are not tradable crypto assets.
var symbolDenylist = map[string]struct{}{
	"usd":  {},
	"M":    {},
	"eurc": {},
}

// equityMarker identifies equity-style symbols mixed into the listing.
const equityMarker = "eq-"

// NewClient builds a metrics client from configuration.
func NewClient(cfg appconfig.ArtemisConfig, log *logger.Log) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	concurrency := cfg.MaxConcurrentBatches
	if concurrency <= 0 {
		concurrency = 4
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		http:      &http.Client{Timeout: timeout},
		batchSize: batchSize,
		gate:      make(chan struct{}, concurrency),
		log:       log,
	}
}

type assetListResponse struct {
	Assets []struct {
		Symbol *string `json:"symbol"`
	} `json:"assets"`
}

// ListSymbols fetches the provider's symbol listing and filters it down to
// tradable crypto assets: entries without a symbol, equity-style identifiers
// and denylisted stablecoin/fiat entries are dropped.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/asset/symbols", nil)
	if err != nil {
		return nil, apperr.Provider("building symbol listing request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Provider("failed to fetch asset symbols: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Provider("artemis API returned status %d", resp.StatusCode)
	}

	var listing assetListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, apperr.Parse("failed to parse asset symbols: %v", err)
	}

	symbols := make([]string, 0, len(listing.Assets))
	for _, asset := range listing.Assets {
		if asset.Symbol == nil {
			continue
		}
		sym := *asset.Symbol
		if strings.Contains(sym, equityMarker) {
			continue
		}
		if _, denied := symbolDenylist[sym]; denied {
			continue
		}
		symbols = append(symbols, sym)
	}

	c.log.WithComponent("artemis").WithFields(logger.Fields{
		"symbols": len(symbols),
	}).Debug("listed crypto symbols")

	return symbols, nil
}

// FetchMetrics fetches the given metrics for all symbols over the inclusive
// date range. Symbols are partitioned into fixed-size batches, each fetched
// with one request; failed batches are dropped from the result. The call
// fails only when every batch fails.
func (c *Client) FetchMetrics(ctx context.Context, symbols, metricNames []string, start, end time.Time) (table.MetricTable, error) {
	if len(symbols) == 0 {
		return table.MetricTable{}, apperr.InvalidInput("no symbols provided")
	}
	if len(metricNames) == 0 {
		return table.MetricTable{}, apperr.InvalidInput("no metrics provided")
	}

	batches := chunkSymbols(symbols, c.batchSize)

	c.log.WithComponent("artemis").WithFields(logger.Fields{
		"symbols": len(symbols),
		"metrics": len(metricNames),
		"batches": len(batches),
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
	}).Debug("fetching metrics")

	results := make([]table.MetricTable, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()

			// Blocks while the maximum number of batches is in flight.
			c.gate <- struct{}{}
			defer func() { <-c.gate }()

			results[i], errs[i] = c.fetchBatch(ctx, batch, metricNames, start, end)
		}(i, batch)
	}
	wg.Wait()

	parts := make([]table.MetricTable, 0, len(batches))
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			c.log.WithComponent("artemis").WithFields(logger.Fields{
				"batch": batches[i],
			}).WithError(err).Warn("batch fetch failed")
			metrics.EmitDropMetric(c.log, metrics.DropMetricBatch, "artemis", "", err.Error())
			continue
		}
		parts = append(parts, results[i])
	}

	if len(parts) == 0 {
		return table.MetricTable{}, apperr.Provider("all batches failed, no data retrieved")
	}
	if failed > 0 {
		c.log.WithComponent("artemis").WithFields(logger.Fields{
			"failed": failed,
			"total":  len(batches),
		}).Warn("some batches failed to fetch")
	}

	return table.MergeMetricTables(parts), nil
}

type metricsResponse struct {
	Data struct {
		Symbols map[string]map[string][]metricPoint `json:"symbols"`
	} `json:"data"`
}

// metricPoint tolerates the provider's field aliases: the date arrives as
// either "date" or "timestamp", the value as either "val" or "value".
type metricPoint struct {
	Date      string      `json:"date"`
	Timestamp json.Number `json:"timestamp"`
	Val       *float64    `json:"val"`
	Value     *float64    `json:"value"`
}

func (c *Client) fetchBatch(ctx context.Context, symbols, metricNames []string, start, end time.Time) (table.MetricTable, error) {
	body, err := json.Marshal(map[string]interface{}{
		"symbols":    symbols,
		"metrics":    strings.Join(metricNames, ","),
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
	})
	if err != nil {
		return table.MetricTable{}, apperr.Provider("encoding metrics request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/metrics", bytes.NewReader(body))
	if err != nil {
		return table.MetricTable{}, apperr.Provider("building metrics request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return table.MetricTable{}, apperr.Provider("failed to fetch metrics batch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return table.MetricTable{}, apperr.Provider("artemis API error %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return table.MetricTable{}, apperr.Parse("failed to parse metrics response: %v", err)
	}

	return flattenResponse(parsed.Data.Symbols)
}

// flattenResponse converts the nested asset→metric→points mapping into
// long-form records with the date column parsed to a time.Time.
func flattenResponse(symbols map[string]map[string][]metricPoint) (table.MetricTable, error) {
	var rows []table.MetricRecord

	for asset, byMetric := range symbols {
		for metricName, points := range byMetric {
			for _, p := range points {
				date, err := p.date()
				if err != nil {
					return table.MetricTable{}, err
				}
				rows = append(rows, table.MetricRecord{
					Date:   date,
					Asset:  asset,
					Metric: metricName,
					Value:  p.value(),
				})
			}
		}
	}

	if len(rows) == 0 {
		return table.MetricTable{}, apperr.Provider("no data points in artemis API response")
	}

	return table.MetricTable{Rows: rows}, nil
}

func (p metricPoint) value() float64 {
	if p.Val != nil {
		return *p.Val
	}
	if p.Value != nil {
		return *p.Value
	}
	return 0
}

func (p metricPoint) date() (time.Time, error) {
	raw := p.Date
	if raw == "" {
		raw = p.Timestamp.String()
	}
	return parseDate(raw)
}

// parseDate accepts the date encodings observed across metrics: calendar
// days, RFC3339 timestamps and epoch milliseconds.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperr.Parse("empty date in metrics response")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, apperr.Parse("unrecognized date %q in metrics response", raw)
}

func chunkSymbols(symbols []string, size int) [][]string {
	batches := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}

// String implements fmt.Stringer for debug logging.
func (c *Client) String() string {
	return fmt.Sprintf("artemis.Client(base=%s, batch=%d, gate=%d)", c.baseURL, c.batchSize, cap(c.gate))
}
