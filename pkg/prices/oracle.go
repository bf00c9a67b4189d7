package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/sipeed/clawvault/pkg/logger"
)

// Fallback prices a single symbol in USD when the exchange has no listing
// for it.
type Fallback interface {
	PriceUSD(ctx context.Context, symbol string) (float64, error)
}

// Default fallback spending caps. The fallback path makes one upstream call
// per symbol, so a large unknown-token list must not stall a wallet view.
const (
	fallbackBudget      = 8 * time.Second
	fallbackPerCall     = 3 * time.Second
	fallbackMaxAttempts = 12
)

// Oracle resolves USD prices: pinned stablecoins, then the cache, then bulk
// exchange tickers, then the per-symbol fallback.
type Oracle struct {
	binance  *BinanceClient
	cache    *Cache
	fallback Fallback

	budget      time.Duration
	perCall     time.Duration
	maxAttempts int
}

// NewOracle builds an oracle. fallback may be nil when no aggregator is
// configured.
func NewOracle(binance *BinanceClient, cache *Cache, fallback Fallback) *Oracle {
	return &Oracle{
		binance:     binance,
		cache:       cache,
		fallback:    fallback,
		budget:      fallbackBudget,
		perCall:     fallbackPerCall,
		maxAttempts: fallbackMaxAttempts,
	}
}

// WithFallbackPolicy overrides the fallback spending caps. Non-positive
// values keep the defaults.
func (o *Oracle) WithFallbackPolicy(budget, perCall time.Duration, maxAttempts int) *Oracle {
	if budget > 0 {
		o.budget = budget
	}
	if perCall > 0 {
		o.perCall = perCall
	}
	if maxAttempts > 0 {
		o.maxAttempts = maxAttempts
	}
	return o
}

// Prices resolves USD prices for symbols, keyed by the symbol as requested.
// Unresolvable symbols are omitted; the caller decides how to render gaps.
func (o *Oracle) Prices(ctx context.Context, symbols []string) map[string]float64 {
	result := make(map[string]float64, len(symbols))

	// canonical ticker -> requested symbols that map onto it
	wanted := make(map[string][]string)
	for _, sym := range symbols {
		if IsStable(sym) {
			result[sym] = 1.0
			continue
		}
		canon := CanonicalSymbol(sym)
		if canon == "" {
			continue
		}
		if price, ok := o.cache.Get(canon); ok {
			result[sym] = price
			continue
		}
		wanted[canon] = append(wanted[canon], sym)
	}
	if len(wanted) == 0 {
		return result
	}

	tickers := make([]string, 0, len(wanted))
	for canon := range wanted {
		tickers = append(tickers, canon+"USDT")
	}
	found, err := o.binance.BulkPrices(ctx, tickers)
	if err != nil {
		// one delisted ticker fails the whole batch; fallback handles the rest
		logger.WarnCF("prices", "Bulk price fetch failed", map[string]any{
			"tickers": len(tickers),
			"error":   err.Error(),
		})
		found = map[string]float64{}
	}

	var missing []string
	for canon, requested := range wanted {
		if price, ok := found[canon+"USDT"]; ok {
			o.cache.Put(canon, price)
			for _, sym := range requested {
				result[sym] = price
			}
			continue
		}
		missing = append(missing, canon)
	}
	if len(missing) > 0 {
		o.fillFromFallback(ctx, missing, wanted, result)
	}
	return result
}

func (o *Oracle) fillFromFallback(ctx context.Context, missing []string, wanted map[string][]string, result map[string]float64) {
	fbCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	attempts := 0
	for _, canon := range missing {
		if attempts >= o.maxAttempts || fbCtx.Err() != nil {
			break
		}

		// retry the exchange with the single-ticker endpoint first; the bulk
		// call fails as a unit when any ticker is unknown
		attempts++
		callCtx, done := context.WithTimeout(fbCtx, o.perCall)
		price, err := o.binance.Price(callCtx, canon+"USDT")
		done()
		if err == nil && price > 0 {
			o.cache.Put(canon, price)
			for _, sym := range wanted[canon] {
				result[sym] = price
			}
			continue
		}

		if o.fallback == nil || attempts >= o.maxAttempts {
			continue
		}
		attempts++
		callCtx, done = context.WithTimeout(fbCtx, o.perCall)
		price, err = o.fallback.PriceUSD(callCtx, canon)
		done()
		if err != nil || price <= 0 {
			logger.DebugCF("prices", "No price for symbol", map[string]any{
				"symbol": canon,
			})
			continue
		}
		o.cache.Put(canon, price)
		for _, sym := range wanted[canon] {
			result[sym] = price
		}
	}
}

// Changes24h resolves 24h percentage moves. Stablecoins report 0 and there
// is no fallback path; unknown symbols are omitted.
func (o *Oracle) Changes24h(ctx context.Context, symbols []string) map[string]float64 {
	result := make(map[string]float64, len(symbols))
	wanted := make(map[string][]string)
	for _, sym := range symbols {
		if IsStable(sym) {
			result[sym] = 0
			continue
		}
		canon := CanonicalSymbol(sym)
		if canon != "" {
			wanted[canon] = append(wanted[canon], sym)
		}
	}
	if len(wanted) == 0 {
		return result
	}

	tickers := make([]string, 0, len(wanted))
	for canon := range wanted {
		tickers = append(tickers, canon+"USDT")
	}
	found, err := o.binance.Changes24h(ctx, tickers)
	if err != nil {
		logger.WarnCF("prices", "24h change fetch failed", map[string]any{
			"error": err.Error(),
		})
		return result
	}
	for canon, requested := range wanted {
		if change, ok := found[canon+"USDT"]; ok {
			for _, sym := range requested {
				result[sym] = change
			}
		}
	}
	return result
}

// OHLC returns candles for symbol. Stablecoins get synthetic flat 1.0 bars;
// a symbol the exchange cannot chart falls back to flat bars at the last
// known price.
func (o *Oracle) OHLC(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	step, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if IsStable(symbol) {
		return flatCandles(1.0, step, limit), nil
	}

	canon := CanonicalSymbol(symbol)
	candles, err := o.binance.Klines(ctx, canon+"USDT", interval, limit)
	if err == nil && len(candles) > 0 {
		return candles, nil
	}

	if price, ok := o.cache.Get(canon); ok {
		return flatCandles(price, step, limit), nil
	}
	// cold cache: derive a spot price before giving up on the chart
	if price := o.Prices(ctx, []string{symbol})[symbol]; price > 0 {
		return flatCandles(price, step, limit), nil
	}
	if err != nil {
		return nil, fmt.Errorf("no chart data for %s: %w", symbol, err)
	}
	return nil, fmt.Errorf("no chart data for %s", symbol)
}

func intervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
}

func flatCandles(price float64, step time.Duration, limit int) []Candle {
	now := time.Now().Truncate(step)
	candles := make([]Candle, limit)
	for i := 0; i < limit; i++ {
		t := now.Add(-time.Duration(limit-1-i) * step)
		candles[i] = Candle{Time: t.Unix(), Open: price, High: price, Low: price, Close: price}
	}
	return candles
}
