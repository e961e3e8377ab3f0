// Package coinbase talks to the exchange provider. It fetches daily candle
// histories per product, paginating the date range under the provider's
// window limit with retry, backoff and inter-request pacing.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "factorflow/config"
	"factorflow/internal/apperr"
	"factorflow/internal/metrics"
	"factorflow/internal/symbols"
	"factorflow/internal/table"
	"factorflow/logger"
)

// Client is the exchange API client. Pagination within one product is
// strictly sequential; fan-out across products is left to the caller's
// environment.
type Client struct {
	baseURL           string
	http              *http.Client
	maxDaysPerRequest int
	maxAttempts       int
	baseBackoff       time.Duration
	limiter           *rate.Limiter
	translations      *symbols.Table
	log               *logger.Log

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(time.Duration)
}

// NewClient builds an exchange client from configuration and the shared
// symbol translation table.
func NewClient(cfg appconfig.CoinbaseConfig, translations *symbols.Table, log *logger.Log) *Client {
	maxDays := cfg.MaxDaysPerRequest
	if maxDays <= 0 {
		maxDays = 300
	}
	attempts := cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Retry.BaseDelay
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:           strings.TrimSuffix(cfg.URL, "/"),
		http:              &http.Client{Timeout: timeout},
		maxDaysPerRequest: maxDays,
		maxAttempts:       attempts,
		baseBackoff:       backoff,
		limiter:           rate.NewLimiter(rate.Every(delay), 1),
		translations:      translations,
		log:               log,
		sleep:             time.Sleep,
	}
}

// FetchPriceVolume fetches daily close price and volume for every symbol
// over the inclusive date range. Symbols run concurrently; unmapped or
// failing symbols contribute nothing. An all-empty outcome is a valid empty
// table, not an error.
func (c *Client) FetchPriceVolume(ctx context.Context, syms []string, start, end time.Time) (table.PriceTable, error) {
	if len(syms) == 0 {
		return table.PriceTable{}, apperr.InvalidInput("no symbols provided")
	}

	c.log.WithComponent("coinbase").WithFields(logger.Fields{
		"symbols": len(syms),
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
	}).Debug("fetching price/volume")

	results := make([]table.PriceTable, len(syms))

	var wg sync.WaitGroup
	for i, sym := range syms {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()

			productID, ok := c.translations.Lookup(sym)
			if !ok {
				c.log.WithComponent("coinbase").WithFields(logger.Fields{
					"symbol": sym,
				}).Warn("no product mapping for symbol")
				metrics.EmitDropMetric(c.log, metrics.DropMetricSymbol, "coinbase", sym, "no mapping")
				return
			}

			candles, err := c.fetchCandles(ctx, productID, start, end)
			if err != nil {
				c.log.WithComponent("coinbase").WithFields(logger.Fields{
					"symbol":  sym,
					"product": productID,
				}).WithError(err).Warn("failed to fetch candles")
				metrics.EmitDropMetric(c.log, metrics.DropMetricSymbol, "coinbase", sym, err.Error())
				return
			}
			if len(candles) == 0 {
				metrics.EmitDropMetric(c.log, metrics.DropMetricSymbol, "coinbase", sym, "no data")
				return
			}

			rows := make([]table.PriceRecord, 0, len(candles))
			for _, cd := range candles {
				rows = append(rows, table.PriceRecord{
					Date:      cd.date,
					Asset:     sym,
					Price:     cd.close,
					Volume24h: cd.volume,
				})
			}
			results[i] = table.PriceTable{Rows: rows}
		}(i, sym)
	}
	wg.Wait()

	return table.MergePriceTables(results), nil
}

// candle is one parsed daily observation for a product.
type candle struct {
	date   time.Time
	close  float64
	volume float64
}

// fetchCandles paginates the date range into windows of at most
// maxDaysPerRequest days, fetching each sequentially. Windows that exhaust
// their retries are dropped. The result is date-ascending and duplicate-free,
// keeping the first-seen row when windows overlap.
func (c *Client) fetchCandles(ctx context.Context, productID string, start, end time.Time) ([]candle, error) {
	endpoint := fmt.Sprintf("%s/products/%s/candles", c.baseURL, productID)

	var all []candle
	currentStart := start
	for !currentStart.After(end) {
		currentEnd := currentStart.AddDate(0, 0, c.maxDaysPerRequest-1)
		if currentEnd.After(end) {
			currentEnd = end
		}

		page, err := c.fetchPage(ctx, endpoint, productID, currentStart, currentEnd)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.log.WithComponent("coinbase").WithFields(logger.Fields{
				"product": productID,
				"start":   currentStart.Format("2006-01-02"),
				"end":     currentEnd.Format("2006-01-02"),
			}).WithError(err).Warn("dropping candle window")
			metrics.EmitDropMetric(c.log, metrics.DropMetricWindow, "coinbase", productID, err.Error())
		} else {
			all = append(all, page...)
		}

		currentStart = currentEnd.AddDate(0, 0, 1)
	}

	// Overlapping windows can repeat a day; keep the first occurrence.
	seen := make(map[int64]struct{}, len(all))
	deduped := all[:0]
	for _, cd := range all {
		key := cd.date.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, cd)
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].date.Before(deduped[j].date) })
	return deduped, nil
}

type candlesResponse struct {
	Candles []rawCandle `json:"candles"`
}

// rawCandle mirrors the provider's string-typed candle fields. Open, high
// and low are accepted but not surfaced.
type rawCandle struct {
	Start  string `json:"start"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// fetchPage fetches one window with retry and exponential backoff. A
// network-level failure (transport, bad status, undecodable body) is retried;
// a non-numeric candle field is a deterministic parse failure and is not.
func (c *Client) fetchPage(ctx context.Context, endpoint, productID string, start, end time.Time) ([]candle, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(dayStart(start).Unix(), 10))
	params.Set("end", strconv.FormatInt(dayEnd(end).Unix(), 10))
	params.Set("granularity", "ONE_DAY")
	pageURL := endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperr.Provider("rate limit wait: %v", err)
		}

		raw, err := c.requestPage(ctx, pageURL, productID)
		if err == nil {
			return parseCandles(raw)
		}
		lastErr = err

		if attempt < c.maxAttempts {
			// Exponential backoff: base*2, base*4, ...
			c.sleep(c.baseBackoff * (1 << attempt))
		}
	}
	return nil, lastErr
}

func (c *Client) requestPage(ctx context.Context, pageURL, productID string) ([]rawCandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperr.Provider("building candles request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Provider("failed to fetch candles for %s: %v", productID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Provider("coinbase API error for %s: status %d", productID, resp.StatusCode)
	}

	var parsed candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Provider("failed to decode candles response for %s: %v", productID, err)
	}
	return parsed.Candles, nil
}

// parseCandles converts string-typed source fields; any non-numeric field
// aborts the page's output with a parse error.
func parseCandles(raw []rawCandle) ([]candle, error) {
	out := make([]candle, 0, len(raw))
	for _, rc := range raw {
		ts, err := strconv.ParseInt(rc.Start, 10, 64)
		if err != nil {
			return nil, apperr.Parse("invalid candle timestamp %q", rc.Start)
		}
		closePrice, err := strconv.ParseFloat(rc.Close, 64)
		if err != nil {
			return nil, apperr.Parse("invalid candle close %q", rc.Close)
		}
		volume, err := strconv.ParseFloat(rc.Volume, 64)
		if err != nil {
			return nil, apperr.Parse("invalid candle volume %q", rc.Volume)
		}
		out = append(out, candle{
			date:   time.Unix(ts, 0).UTC(),
			close:  closePrice,
			volume: volume,
		})
	}
	return out, nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
