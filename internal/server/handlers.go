package server

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"factorflow/internal/apperr"
	"factorflow/internal/runlog"
)

// availableFactors is the set of factors the API serves results for.
var availableFactors = []string{"smb", "market", "value", "momentum", "momentum_v2", "growth"}

func factorAvailable(name string) bool {
	for _, f := range availableFactors {
		if f == name {
			return true
		}
	}
	return false
}

// factorReturns is one factor's time-series payload.
type factorReturns struct {
	Factor            string    `json:"factor"`
	Dates             []string  `json:"dates"`
	Returns           []float64 `json:"returns"`
	CumulativeReturns []float64 `json:"cumulative_returns"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":              s.cfg.Factorflow.Name,
		"version":           s.cfg.Factorflow.Version,
		"available_factors": availableFactors,
		"endpoints": gin.H{
			"/factors":                 "List all available factors",
			"/factors/{factor}/logs":   "Get historical performance logs for a factor",
			"/factors/{factor}/latest": "Get latest performance for a factor",
			"/factors/compare":         "Compare performance across all factors",
			"/factors/time-series":     "Get time series data for factors",
			"/health":                  "Health check",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"api_key_configured": s.cfg.Artemis.APIKey != "",
	})
}

func (s *Server) handleListFactors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"factors": []gin.H{
			{
				"name":        "smb",
				"description": "Small Minus Big - Size factor based on market capitalization",
				"signal":      "Market cap (long small, short large)",
			},
			{
				"name":        "market",
				"description": "Market factor - Top 10 assets by market cap",
				"signal":      "Market cap weighted top assets",
			},
			{
				"name":        "value",
				"description": "Value factor based on MC-to-fees ratio",
				"signal":      "MC/Fees ratio (long high, short low)",
			},
			{
				"name":        "momentum",
				"description": "Momentum factor - Simple trend following",
				"signal":      "Price momentum over lookback period",
			},
			{
				"name":        "momentum_v2",
				"description": "Momentum V2 - Volatility-adjusted momentum",
				"signal":      "Momentum * (|mean_return| / std)",
			},
			{
				"name":        "growth",
				"description": "Growth factor - Composite of fundamental metrics",
				"signal":      "Fees, DAU, revenue growth rates",
			},
		},
	})
}

func (s *Server) handleFactorLogs(c *gin.Context) {
	factor := c.Param("factor")
	if !factorAvailable(factor) {
		s.respondError(c, apperr.NotFound("factor %q not found", factor))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		s.respondError(c, apperr.InvalidInput("invalid limit %q", c.Query("limit")))
		return
	}

	logs, err := s.store.LoadRuns(factor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleFactorLatest(c *gin.Context) {
	factor := c.Param("factor")
	if !factorAvailable(factor) {
		s.respondError(c, apperr.NotFound("factor %q not found", factor))
		return
	}

	logs, err := s.store.LoadRuns(factor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(logs) == 0 {
		s.respondError(c, apperr.NotFound("no logs found for factor %s", factor))
		return
	}
	c.JSON(http.StatusOK, logs[len(logs)-1])
}

func (s *Server) handleCompareFactors(c *gin.Context) {
	type comparisonEntry struct {
		Factor            string   `json:"factor"`
		AnnualizedReturn  *float64 `json:"annualized_return"`
		CumulativeReturns *float64 `json:"cumulative_returns"`
		SharpeRatio       *float64 `json:"sharpe_ratio"`
		SortinoRatio      *float64 `json:"sortino_ratio"`
		Years             *float64 `json:"years"`
	}

	comparison := make([]comparisonEntry, 0, len(availableFactors))
	for _, factor := range availableFactors {
		logs, err := s.store.LoadRuns(factor)
		if err != nil || len(logs) == 0 {
			continue
		}
		latest := logs[len(logs)-1]
		comparison = append(comparison, comparisonEntry{
			Factor:            factor,
			AnnualizedReturn:  latest.AnnualizedReturn,
			CumulativeReturns: latest.CumulativeReturns,
			SharpeRatio:       latest.SharpeRatio,
			SortinoRatio:      latest.SortinoRatio,
			Years:             latest.Years,
		})
	}

	annualized := func(e comparisonEntry) float64 {
		if e.AnnualizedReturn == nil {
			return 0
		}
		return *e.AnnualizedReturn
	}
	sort.SliceStable(comparison, func(i, j int) bool {
		return annualized(comparison[i]) > annualized(comparison[j])
	})

	c.JSON(http.StatusOK, gin.H{"comparison": comparison})
}

func (s *Server) handleTimeSeries(c *gin.Context) {
	var factors []string
	if raw := c.Query("factors"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				factors = append(factors, f)
			}
		}
	} else {
		factors = availableFactors
	}

	normalize := true
	if raw := c.Query("normalize_to_100"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(c, apperr.InvalidInput("invalid normalize_to_100 %q", raw))
			return
		}
		normalize = v
	}
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")

	result := make(map[string]factorReturns)
	for _, factor := range factors {
		if !factorAvailable(factor) {
			continue
		}

		logs, err := s.store.LoadRuns(factor)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if len(logs) == 0 {
			continue
		}
		latest := logs[len(logs)-1]

		ts, err := s.store.LoadTimeSeries(factor, latest.RunID)
		if err != nil {
			// A run without a saved series is simply absent from the result.
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			s.respondError(c, err)
			return
		}

		ts = filterRange(ts, startDate, endDate)
		if normalize {
			for i, v := range ts.CumulativeReturns {
				ts.CumulativeReturns[i] = (v + 1.0) * 100.0
			}
		}

		result[factor] = factorReturns{
			Factor:            factor,
			Dates:             ts.Dates,
			Returns:           ts.Returns,
			CumulativeReturns: ts.CumulativeReturns,
		}
	}

	c.JSON(http.StatusOK, result)
}

// filterRange trims a series to the inclusive [start, end] date range. Dates
// are ISO strings so lexical comparison matches chronological order.
func filterRange(ts runlog.TimeSeries, startDate, endDate string) runlog.TimeSeries {
	lo, hi := 0, len(ts.Dates)
	if startDate != "" {
		for lo < hi && ts.Dates[lo] < startDate {
			lo++
		}
	}
	if endDate != "" {
		for hi > lo && ts.Dates[hi-1] > endDate {
			hi--
		}
	}
	return runlog.TimeSeries{
		Dates:             ts.Dates[lo:hi],
		Returns:           ts.Returns[lo:hi],
		CumulativeReturns: ts.CumulativeReturns[lo:hi],
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrProvider):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		s.log.WithComponent("server").WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
