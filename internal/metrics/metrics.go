// Package metrics tracks ingestion health counters and optionally publishes
// them to CloudWatch. Counters are process-wide and safe for concurrent use.
package metrics

import (
	"sync/atomic"

	"factorflow/logger"
)

// DropMetric identifies the metric name emitted when a unit of work is
// discarded instead of failing the whole call.
type DropMetric string

const (
	// DropMetricBatch records metrics batches dropped after a fetch failure.
	DropMetricBatch DropMetric = "metric_batches_dropped"
	// DropMetricWindow records candle windows dropped after exhausting retries.
	DropMetricWindow DropMetric = "candle_windows_dropped"
	// DropMetricSymbol records symbols skipped during price fetching.
	DropMetricSymbol DropMetric = "price_symbols_skipped"
)

var (
	batchesDropped atomic.Int64
	windowsDropped atomic.Int64
	symbolsSkipped atomic.Int64
	runsAppended   atomic.Int64
)

// Counters is a point-in-time snapshot of the ingestion counters.
type Counters struct {
	BatchesDropped int64
	WindowsDropped int64
	SymbolsSkipped int64
	RunsAppended   int64
}

// Snapshot returns the current counter values.
func Snapshot() Counters {
	return Counters{
		BatchesDropped: batchesDropped.Load(),
		WindowsDropped: windowsDropped.Load(),
		SymbolsSkipped: symbolsSkipped.Load(),
		RunsAppended:   runsAppended.Load(),
	}
}

// Reset zeroes all counters. Intended for tests.
func Reset() {
	batchesDropped.Store(0)
	windowsDropped.Store(0)
	symbolsSkipped.Store(0)
	runsAppended.Store(0)
}

// EmitDropMetric increments the counter behind the given drop metric, logs
// the event and publishes it to CloudWatch when configured. Optional metadata
// (provider, symbol, reason) is attached as dimensions when provided.
func EmitDropMetric(log *logger.Log, metric DropMetric, provider, symbol, reason string) {
	switch metric {
	case DropMetricBatch:
		batchesDropped.Add(1)
	case DropMetricWindow:
		windowsDropped.Add(1)
	case DropMetricSymbol:
		symbolsSkipped.Add(1)
	}

	fields := logger.Fields{}
	if provider != "" {
		fields["provider"] = provider
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if reason != "" {
		fields["reason"] = reason
	}

	emit(log, "ingestion", string(metric), 1, fields)
}

// EmitRunAppended counts one durable run-log append for the given factor.
func EmitRunAppended(log *logger.Log, factor string) {
	runsAppended.Add(1)
	emit(log, "runlog", "runs_appended", 1, logger.Fields{"factor": factor})
}

func emit(log *logger.Log, component, metric string, value int64, fields logger.Fields) {
	if fields == nil {
		fields = logger.Fields{}
	}
	fields["metric"] = metric
	fields["value"] = value
	log.WithComponent(component).WithFields(fields).Debug("metric")

	publishMetricDatum(component, metric, float64(value), fields)
}
