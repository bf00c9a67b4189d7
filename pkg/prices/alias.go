// ClawVault - custodial EVM wallet backend
// Package prices quotes token USD prices from exchange market data with an
// on-chain quote fallback.
package prices

import "strings"

// stablecoins are pinned to 1.0 USD without any network call.
var stablecoins = map[string]bool{
	"USDT": true,
	"USDC": true,
	"BUSD": true,
	"DAI":  true,
}

// aliasOverrides maps wrapped or bridged symbols to the asset the exchange
// actually lists.
var aliasOverrides = map[string]string{
	"WBNB":   "BNB",
	"WETH":   "ETH",
	"WBTC":   "BTC",
	"BTCB":   "BTC",
	"WMATIC": "MATIC",
	"WAVAX":  "AVAX",
	"WFTM":   "FTM",
	"WBETH":  "ETH",
}

// IsStable reports whether symbol is a pinned stablecoin.
func IsStable(symbol string) bool {
	return stablecoins[strings.ToUpper(symbol)]
}

// CanonicalSymbol maps a token symbol to its market-data ticker: explicit
// overrides first, then a generic wrapped-asset prefix strip.
func CanonicalSymbol(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if mapped, ok := aliasOverrides[upper]; ok {
		return mapped
	}
	if len(upper) > 3 && strings.HasPrefix(upper, "W") {
		return upper[1:]
	}
	return upper
}
