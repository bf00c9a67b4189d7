package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Candle is one OHLC bar. Time is the open time in unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// BinanceClient reads public spot market data.
type BinanceClient struct {
	baseURL string
	http    *http.Client
}

func NewBinanceClient(baseURL string) *BinanceClient {
	return &BinanceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BinanceClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := b.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance %s: decode: %w", path, err)
	}
	return nil
}

// symbolsParam encodes tickers the way the exchange expects:
// ["BTCUSDT","ETHUSDT"] with no spaces.
func symbolsParam(tickers []string) string {
	quoted := make([]string, len(tickers))
	for i, s := range tickers {
		quoted[i] = `"` + s + `"`
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// BulkPrices fetches last trade prices for USDT tickers, keyed by ticker.
// One unknown ticker fails the whole request on the exchange side, so
// callers should treat an error as "try per-symbol fallback".
func (b *BinanceClient) BulkPrices(ctx context.Context, tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return map[string]float64{}, nil
	}
	params := url.Values{}
	params.Set("symbols", symbolsParam(tickers))
	var rows []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.get(ctx, "/api/v3/ticker/price", params, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		p, err := strconv.ParseFloat(row.Price, 64)
		if err != nil {
			continue
		}
		out[row.Symbol] = p
	}
	return out, nil
}

// Price fetches a single ticker's last price.
func (b *BinanceClient) Price(ctx context.Context, ticker string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	var row struct {
		Price string `json:"price"`
	}
	if err := b.get(ctx, "/api/v3/ticker/price", params, &row); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(row.Price, 64)
}

// Changes24h fetches 24h percentage moves for tickers, keyed by ticker.
func (b *BinanceClient) Changes24h(ctx context.Context, tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return map[string]float64{}, nil
	}
	params := url.Values{}
	params.Set("symbols", symbolsParam(tickers))
	var rows []struct {
		Symbol             string `json:"symbol"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := b.get(ctx, "/api/v3/ticker/24hr", params, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		p, err := strconv.ParseFloat(row.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		out[row.Symbol] = p
	}
	return out, nil
}

// Klines fetches OHLC bars for ticker.
func (b *BinanceClient) Klines(ctx context.Context, ticker, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	var rows [][]json.RawMessage
	if err := b.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		c := Candle{Time: openMs / 1000}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		ok := true
		for i, dst := range fields {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if ok {
			candles = append(candles, c)
		}
	}
	return candles, nil
}
