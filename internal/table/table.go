// Package table holds the tabular shapes produced by the fetchers and the
// merge step that reduces per-batch and per-symbol partial tables into one.
package table

import "time"

// MetricRecord is one long-form observation: (date, asset, metric, value).
type MetricRecord struct {
	Date   time.Time
	Asset  string
	Metric string
	Value  float64
}

// PriceRecord is one daily price/volume observation for an asset.
type PriceRecord struct {
	Date      time.Time
	Asset     string
	Price     float64
	Volume24h float64
}

// MetricTable is an ordered set of long-form metric records.
type MetricTable struct {
	Rows []MetricRecord
}

// PriceTable is an ordered set of price/volume records.
type PriceTable struct {
	Rows []PriceRecord
}

// MetricColumns is the fixed column set of a MetricTable.
func MetricColumns() []string { return []string{"date", "asset", "metric", "value"} }

// PriceColumns is the fixed column set of a PriceTable.
func PriceColumns() []string { return []string{"date", "asset", "price", "volume24h"} }

// Len returns the row count.
func (t MetricTable) Len() int { return len(t.Rows) }

// Len returns the row count.
func (t PriceTable) Len() int { return len(t.Rows) }

// MergeMetricTables vertically concatenates partial tables in input order.
// An empty input yields the empty table with the documented schema.
func MergeMetricTables(tables []MetricTable) MetricTable {
	n := 0
	for _, t := range tables {
		n += len(t.Rows)
	}
	rows := make([]MetricRecord, 0, n)
	for _, t := range tables {
		rows = append(rows, t.Rows...)
	}
	return MetricTable{Rows: rows}
}

// MergePriceTables vertically concatenates partial tables in input order.
// An empty input yields the empty table with the documented schema.
func MergePriceTables(tables []PriceTable) PriceTable {
	n := 0
	for _, t := range tables {
		n += len(t.Rows)
	}
	rows := make([]PriceRecord, 0, n)
	for _, t := range tables {
		rows = append(rows, t.Rows...)
	}
	return PriceTable{Rows: rows}
}
