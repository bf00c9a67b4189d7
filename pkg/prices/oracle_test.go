package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCanonicalSymbol(t *testing.T) {
	cases := map[string]string{
		"WBNB":   "BNB",
		"wbnb":   "BNB",
		"WETH":   "ETH",
		"BTCB":   "BTC",
		"WBETH":  "ETH",
		"WMATIC": "MATIC",
		"WDOGE":  "DOGE", // generic wrapped strip
		"WOO":    "WOO",  // too short to be a wrapper
		"CAKE":   "CAKE",
		" eth ":  "ETH",
	}
	for in, want := range cases {
		if got := CanonicalSymbol(in); got != want {
			t.Errorf("CanonicalSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsStable(t *testing.T) {
	for _, s := range []string{"USDT", "usdc", "BUSD", "dai"} {
		if !IsStable(s) {
			t.Errorf("IsStable(%q) = false", s)
		}
	}
	if IsStable("BNB") {
		t.Error("IsStable(BNB) = true")
	}
}

func TestCache_TTL(t *testing.T) {
	c := NewCache(50 * time.Millisecond)
	c.Put("BNB", 600)
	if p, ok := c.Get("BNB"); !ok || p != 600 {
		t.Fatalf("Get = %v,%v", p, ok)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("BNB"); ok {
		t.Error("entry survived past TTL")
	}
}

type fakeFallback struct {
	prices map[string]float64
	calls  int32
}

func (f *fakeFallback) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	atomic.AddInt32(&f.calls, 1)
	if p, ok := f.prices[symbol]; ok {
		return p, nil
	}
	return 0, errors.New("no route")
}

func newOracle(t *testing.T, handler http.HandlerFunc, fb Fallback) *Oracle {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOracle(NewBinanceClient(srv.URL), NewCache(time.Minute), fb)
}

func TestOracle_StablesNeedNoNetwork(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s", r.URL.Path)
	}, nil)

	got := o.Prices(context.Background(), []string{"USDT", "USDC", "BUSD", "DAI"})
	for _, s := range []string{"USDT", "USDC", "BUSD", "DAI"} {
		if got[s] != 1.0 {
			t.Errorf("price[%s] = %v, want 1.0", s, got[s])
		}
	}
}

func TestOracle_BulkPricesAndAliases(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		symbols := r.URL.Query().Get("symbols")
		if !strings.Contains(symbols, "BNBUSDT") || !strings.Contains(symbols, "ETHUSDT") {
			t.Errorf("symbols param = %s", symbols)
		}
		w.Write([]byte(`[{"symbol":"BNBUSDT","price":"600.5"},{"symbol":"ETHUSDT","price":"3000"}]`))
	}, nil)

	got := o.Prices(context.Background(), []string{"WBNB", "WETH", "USDT"})
	if got["WBNB"] != 600.5 {
		t.Errorf("WBNB priced via BNB ticker = %v, want 600.5", got["WBNB"])
	}
	if got["WETH"] != 3000 {
		t.Errorf("WETH = %v, want 3000", got["WETH"])
	}
	if got["USDT"] != 1.0 {
		t.Errorf("USDT = %v, want 1.0", got["USDT"])
	}
}

func TestOracle_CacheAvoidsRefetch(t *testing.T) {
	var calls int32
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[{"symbol":"BNBUSDT","price":"600"}]`))
	}, nil)

	o.Prices(context.Background(), []string{"BNB"})
	o.Prices(context.Background(), []string{"BNB"})
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestOracle_FallbackFillsUnlisted(t *testing.T) {
	fb := &fakeFallback{prices: map[string]float64{"OBSCURE": 0.042}}
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		// both the bulk and the single-ticker retry fail for this listing
		w.WriteHeader(http.StatusBadRequest)
	}, fb)

	got := o.Prices(context.Background(), []string{"OBSCURE"})
	if got["OBSCURE"] != 0.042 {
		t.Errorf("OBSCURE = %v, want 0.042", got["OBSCURE"])
	}
}

func TestOracle_PartialResultsOmitUnpriced(t *testing.T) {
	fb := &fakeFallback{prices: map[string]float64{}}
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, fb)

	got := o.Prices(context.Background(), []string{"NOPE", "USDT"})
	if _, ok := got["NOPE"]; ok {
		t.Error("unpriceable symbol present in result")
	}
	if got["USDT"] != 1.0 {
		t.Errorf("USDT = %v, want 1.0", got["USDT"])
	}
}

func TestOracle_FallbackAttemptsBounded(t *testing.T) {
	fb := &fakeFallback{prices: map[string]float64{}}
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, fb)

	// 20 unknown symbols: attempt accounting must stop the fallback loop
	// well before one upstream probe per symbol
	syms := make([]string, 20)
	for i := range syms {
		syms[i] = "ZZZ" + string(rune('A'+i))
	}
	o.Prices(context.Background(), syms)
	if n := atomic.LoadInt32(&fb.calls); n > fallbackMaxAttempts/2 {
		t.Errorf("fallback calls = %d, want <= %d", n, fallbackMaxAttempts/2)
	}
}

func TestOracle_FallbackPolicyOverride(t *testing.T) {
	fb := &fakeFallback{prices: map[string]float64{}}
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, fb).WithFallbackPolicy(time.Second, 100*time.Millisecond, 2)

	syms := make([]string, 20)
	for i := range syms {
		syms[i] = "ZZZ" + string(rune('A'+i))
	}
	o.Prices(context.Background(), syms)
	// per symbol: one exchange retry, one fallback probe; two attempts
	// covers exactly one symbol
	if n := atomic.LoadInt32(&fb.calls); n != 1 {
		t.Errorf("fallback calls = %d, want 1 under a 2-attempt cap", n)
	}
}

func TestOracle_Changes24h(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"symbol":"BNBUSDT","priceChangePercent":"-2.31"}]`))
	}, nil)

	got := o.Changes24h(context.Background(), []string{"WBNB", "USDT", "NOPE"})
	if got["WBNB"] != -2.31 {
		t.Errorf("WBNB change = %v, want -2.31", got["WBNB"])
	}
	if got["USDT"] != 0 {
		t.Errorf("USDT change = %v, want 0", got["USDT"])
	}
	if _, ok := got["NOPE"]; ok {
		t.Error("unknown symbol present in 24h changes")
	}
}

func TestOracle_OHLCStableSynthetic(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s", r.URL.Path)
	}, nil)

	candles, err := o.OHLC(context.Background(), "USDT", "1h", 24)
	if err != nil {
		t.Fatalf("OHLC: %v", err)
	}
	if len(candles) != 24 {
		t.Fatalf("candles = %d, want 24", len(candles))
	}
	for _, c := range candles {
		if c.Open != 1.0 || c.Close != 1.0 || c.High != 1.0 || c.Low != 1.0 {
			t.Fatalf("stable candle not flat: %+v", c)
		}
	}
	if candles[0].Time >= candles[23].Time {
		t.Error("candles not in ascending time order")
	}
}

func TestOracle_OHLCFromKlines(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "BNBUSDT" || q.Get("interval") != "1h" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`[[1700000000000,"600.0","610.0","595.0","605.0","123.4"],[1700003600000,"605.0","612.0","601.0","611.0","98.7"]]`))
	}, nil)

	candles, err := o.OHLC(context.Background(), "BNB", "1h", 2)
	if err != nil {
		t.Fatalf("OHLC: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Time != 1700000000 {
		t.Errorf("time = %d, want seconds", candles[0].Time)
	}
	if candles[1].Close != 611.0 {
		t.Errorf("close = %v, want 611.0", candles[1].Close)
	}
}

func TestOracle_OHLCDerivesPriceOnColdCache(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/klines" {
			// the exchange cannot chart this listing
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[{"symbol":"CAKEUSDT","price":"2.5"}]`))
	}, nil)

	candles, err := o.OHLC(context.Background(), "CAKE", "1h", 3)
	if err != nil {
		t.Fatalf("OHLC: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("candles = %d, want 3", len(candles))
	}
	for _, c := range candles {
		if c.Close != 2.5 {
			t.Fatalf("synthetic candle = %+v, want flat 2.5", c)
		}
	}
}

func TestOracle_OHLCUnsupportedInterval(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	if _, err := o.OHLC(context.Background(), "BNB", "3m", 10); err == nil {
		t.Error("expected error for unsupported interval")
	}
}
