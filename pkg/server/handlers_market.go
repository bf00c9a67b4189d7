package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/sipeed/clawvault/pkg/swap"
	"github.com/sipeed/clawvault/pkg/tokens"
)

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swap.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, amount := q.Get("fromToken"), q.Get("toToken"), q.Get("amount")
	if from == "" || to == "" || amount == "" {
		writeError(w, fmt.Errorf("%w: fromToken, toToken and amount are required", errBadRequest))
		return
	}
	if s.cfg.StubMode() {
		writeMessage(w, http.StatusBadRequest, "quoting requires aggregator credentials")
		return
	}
	quote, err := s.engine.Quote(r.Context(), from, to, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, fmt.Errorf("%w: symbols is required", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, s.oracle.Prices(r.Context(), symbols))
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, fmt.Errorf("%w: symbols is required", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, s.oracle.Changes24h(r.Context(), symbols))
}

func (s *Server) handleOHLC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, fmt.Errorf("%w: symbol is required", errBadRequest))
		return
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "1h"
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	candles, err := s.oracle.OHLC(r.Context(), symbol, interval, limit)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "candles": candles})
}

// tokenListPriority floats the majors to the top of catalog listings.
var tokenListPriority = map[string]int{
	"USDT": 0, "USDC": 1, "BUSD": 2, "WBNB": 3, "BNB": 4, "ETH": 5, "BTC": 6,
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	cached, err := s.catalog.Read(r.Context(), s.cfg.Chain.ChainID)
	if err != nil {
		writeError(w, err)
		return
	}
	// the catalog slice is shared with other requests; sort a copy
	entries := append([]tokens.Entry(nil), cached...)

	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Symbol), q) ||
				strings.Contains(strings.ToLower(e.Name), q) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	sort.SliceStable(entries, func(i, j int) bool {
		pi, iOK := tokenListPriority[strings.ToUpper(entries[i].Symbol)]
		pj, jOK := tokenListPriority[strings.ToUpper(entries[j].Symbol)]
		switch {
		case iOK && jOK:
			return pi < pj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return entries[i].Symbol < entries[j].Symbol
		}
	})

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []tokens.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": entries, "count": len(entries)})
}

func (s *Server) handleFeaturesGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flags.All())
}

func (s *Server) handleFeaturesPut(w http.ResponseWriter, r *http.Request) {
	var updates map[string]bool
	if err := decodeBody(r, &updates); err != nil {
		writeError(w, err)
		return
	}
	for name, on := range updates {
		if err := s.flags.Set(name, on); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.flags.All())
}
