// Package symbols translates metrics-provider symbol names to exchange
// product identifiers. The table is built once at startup and never mutated,
// so it is safe to share across concurrent fetches without locking.
package symbols

import "sort"

// Pair associates a metrics-provider symbol with an exchange product id.
type Pair struct {
	Symbol    string
	ProductID string
}

// Table is an immutable symbol translation table.
type Table struct {
	bySymbol map[string]string
}

// NewTable builds a table from the given pairs. Later duplicates win.
func NewTable(pairs []Pair) *Table {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Symbol] = p.ProductID
	}
	return &Table{bySymbol: m}
}

// Default returns the built-in table covering the tradable USD products.
func Default() *Table {
	return NewTable(defaultPairs)
}

// Lookup returns the product id for a symbol, and whether a mapping exists.
func (t *Table) Lookup(symbol string) (string, bool) {
	id, ok := t.bySymbol[symbol]
	return id, ok
}

// IsSupported reports whether the symbol has a product mapping.
func (t *Table) IsSupported(symbol string) bool {
	_, ok := t.bySymbol[symbol]
	return ok
}

// Supported returns all mapped symbols in sorted order.
func (t *Table) Supported() []string {
	out := make([]string, 0, len(t.bySymbol))
	for s := range t.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of mappings.
func (t *Table) Len() int { return len(t.bySymbol) }

var defaultPairs = []Pair{
	// Majors
	{"bitcoin", "BTC-USD"},
	{"ethereum", "ETH-USD"},
	{"solana", "SOL-USD"},
	{"cardano", "ADA-USD"},
	{"avalanche", "AVAX-USD"},
	{"polkadot", "DOT-USD"},
	{"chainlink", "LINK-USD"},
	{"polygon", "POL-USD"},
	{"litecoin", "LTC-USD"},
	{"uniswap", "UNI-USD"},
	{"stellar", "XLM-USD"},
	{"cosmos", "ATOM-USD"},
	{"near", "NEAR-USD"},
	{"algorand", "ALGO-USD"},
	{"filecoin", "FIL-USD"},
	{"internet-computer", "ICP-USD"},
	{"aptos", "APT-USD"},
	{"arbitrum", "ARB-USD"},
	{"optimism", "OP-USD"},
	{"sui", "SUI-USD"},
	{"hedera", "HBAR-USD"},

	// DeFi
	{"aave", "AAVE-USD"},
	{"maker", "MKR-USD"},
	{"render", "RENDER-USD"},
	{"injective", "INJ-USD"},
	{"sei", "SEI-USD"},
	{"celestia", "TIA-USD"},
	{"stacks", "STX-USD"},
	{"the-graph", "GRT-USD"},
	{"eos", "EOS-USD"},
	{"flow", "FLOW-USD"},
	{"compound", "COMP-USD"},
	{"sushi", "SUSHI-USD"},
	{"1inch", "1INCH-USD"},
	{"curve-dao-token", "CRV-USD"},
	{"yearn-finance", "YFI-USD"},
	{"synthetix", "SNX-USD"},

	// Gaming and metaverse
	{"axie-infinity", "AXS-USD"},
	{"decentraland", "MANA-USD"},
	{"the-sandbox", "SAND-USD"},
	{"enjin-coin", "ENJ-USD"},
	{"gala", "GALA-USD"},
	{"immutable-x", "IMX-USD"},

	// Staking
	{"lido-dao", "LDO-USD"},
	{"rocket-pool", "RPL-USD"},

	// AI and data
	{"fetch-ai", "FET-USD"},
	{"ocean-protocol", "OCEAN-USD"},
	{"theta", "THETA-USD"},

	// Legacy chains
	{"tezos", "XTZ-USD"},
	{"iota", "IOTA-USD"},
	{"zcash", "ZEC-USD"},
	{"dash", "DASH-USD"},
	{"ethereum-classic", "ETC-USD"},
	{"bitcoin-cash", "BCH-USD"},

	// Meme
	{"dogecoin", "DOGE-USD"},
	{"shiba-inu", "SHIB-USD"},
	{"pepe", "PEPE-USD"},
	{"bonk", "BONK-USD"},
	{"floki", "FLOKI-USD"},

	// Misc tokens
	{"jasmy", "JASMY-USD"},
	{"chiliz", "CHZ-USD"},
	{"mask-network", "MASK-USD"},
	{"blur", "BLUR-USD"},
	{"worldcoin", "WLD-USD"},

	// Solana ecosystem
	{"jupiter", "JUP-USD"},
	{"pyth-network", "PYTH-USD"},
	{"jito", "JTO-USD"},

	// Derivatives
	{"dydx", "DYDX-USD"},
	{"gmx", "GMX-USD"},
	{"raydium", "RAY-USD"},

	// RWA and yield
	{"ondo-finance", "ONDO-USD"},
	{"ethena", "ENA-USD"},
	{"pendle", "PENDLE-USD"},

	// Layer 2 and scaling
	{"eigen-layer", "EIGEN-USD"},
	{"zksync", "ZK-USD"},
	{"scroll", "SCR-USD"},
	{"mantle", "MNT-USD"},

	// Layer 1s
	{"ton", "TON-USD"},
	{"tron", "TRX-USD"},
	{"xrp", "XRP-USD"},
}
