package symbols

import (
	"sort"
	"testing"
)

func TestLookupMajors(t *testing.T) {
	tbl := Default()

	cases := map[string]string{
		"bitcoin":  "BTC-USD",
		"ethereum": "ETH-USD",
		"solana":   "SOL-USD",
	}
	for sym, want := range cases {
		got, ok := tbl.Lookup(sym)
		if !ok {
			t.Fatalf("expected mapping for %q", sym)
		}
		if got != want {
			t.Errorf("Lookup(%q) = %q, want %q", sym, got, want)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	tbl := Default()
	if _, ok := tbl.Lookup("nonexistent-token"); ok {
		t.Fatal("expected no mapping for unknown symbol")
	}
	if tbl.IsSupported("nonexistent-token") {
		t.Fatal("IsSupported must be false for unknown symbol")
	}
}

func TestSupportedSortedAndComplete(t *testing.T) {
	tbl := Default()
	syms := tbl.Supported()

	if len(syms) != tbl.Len() {
		t.Fatalf("Supported returned %d symbols, table holds %d", len(syms), tbl.Len())
	}
	if len(syms) < 80 {
		t.Fatalf("expected at least 80 mappings, got %d", len(syms))
	}
	if !sort.StringsAreSorted(syms) {
		t.Error("Supported must return sorted symbols")
	}
	for _, want := range []string{"bitcoin", "ethereum", "xrp"} {
		i := sort.SearchStrings(syms, want)
		if i >= len(syms) || syms[i] != want {
			t.Errorf("expected %q in supported set", want)
		}
	}
}

func TestNewTableLaterDuplicateWins(t *testing.T) {
	tbl := NewTable([]Pair{
		{"bitcoin", "BTC-USD"},
		{"bitcoin", "XBT-USD"},
	})
	got, _ := tbl.Lookup("bitcoin")
	if got != "XBT-USD" {
		t.Fatalf("expected later duplicate to win, got %q", got)
	}
}
