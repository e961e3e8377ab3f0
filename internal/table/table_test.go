package table

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMergeMetricTablesPreservesOrder(t *testing.T) {
	a := MetricTable{Rows: []MetricRecord{
		{Date: day("2024-01-01"), Asset: "bitcoin", Metric: "mc", Value: 1},
		{Date: day("2024-01-02"), Asset: "bitcoin", Metric: "mc", Value: 2},
	}}
	b := MetricTable{Rows: []MetricRecord{
		{Date: day("2024-01-01"), Asset: "ethereum", Metric: "fees", Value: 3},
	}}

	merged := MergeMetricTables([]MetricTable{a, b})
	if merged.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", merged.Len())
	}
	if merged.Rows[0].Asset != "bitcoin" || merged.Rows[2].Asset != "ethereum" {
		t.Error("merge must preserve input order")
	}
}

func TestMergeMetricTablesEmptyInput(t *testing.T) {
	merged := MergeMetricTables(nil)
	if merged.Len() != 0 {
		t.Fatalf("expected empty table, got %d rows", merged.Len())
	}

	cols := MetricColumns()
	want := []string{"date", "asset", "metric", "value"}
	if len(cols) != len(want) {
		t.Fatalf("unexpected column count: %v", cols)
	}
	for i, c := range want {
		if cols[i] != c {
			t.Errorf("column %d = %q, want %q", i, cols[i], c)
		}
	}
}

func TestMergePriceTablesEmptyInput(t *testing.T) {
	merged := MergePriceTables([]PriceTable{})
	if merged.Len() != 0 {
		t.Fatalf("expected empty table, got %d rows", merged.Len())
	}

	cols := PriceColumns()
	want := []string{"date", "asset", "price", "volume24h"}
	for i, c := range want {
		if cols[i] != c {
			t.Errorf("column %d = %q, want %q", i, cols[i], c)
		}
	}
}

func TestMergePriceTablesSkipsNothing(t *testing.T) {
	parts := []PriceTable{
		{Rows: []PriceRecord{{Date: day("2024-03-01"), Asset: "solana", Price: 150, Volume24h: 9.5}}},
		{},
		{Rows: []PriceRecord{{Date: day("2024-03-02"), Asset: "solana", Price: 151, Volume24h: 8.1}}},
	}
	merged := MergePriceTables(parts)
	if merged.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", merged.Len())
	}
}
