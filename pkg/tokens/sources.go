package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sipeed/clawvault/pkg/aggregator"
)

// AggregatorSource builds the catalog from the swap aggregator's token list.
type AggregatorSource struct {
	client *aggregator.Client
}

func NewAggregatorSource(client *aggregator.Client) *AggregatorSource {
	return &AggregatorSource{client: client}
}

func (s *AggregatorSource) FetchCatalog(ctx context.Context, chainID int64) ([]Entry, error) {
	tokens, err := s.client.Tokens(ctx, chainID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(tokens))
	for _, tok := range tokens {
		entries = append(entries, Entry{
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Address:  tok.Address,
			Decimals: tok.Decimals,
			LogoURI:  tok.LogoURI,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return entries, nil
}

// BinanceSource lists spot-tradeable USDT pairs from the exchange and maps
// them to BINANCE:<SYMBOL> pseudo-addresses. It serves as the catalog source
// when no aggregator API key is configured.
type BinanceSource struct {
	baseURL string
	http    *http.Client
}

func NewBinanceSource(baseURL string) *BinanceSource {
	return &BinanceSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

func (s *BinanceSource) FetchCatalog(ctx context.Context, chainID int64) ([]Entry, error) {
	u := s.baseURL + "/api/v3/exchangeInfo?permissions=SPOT"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange info: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, pair := range info.Symbols {
		if pair.Status != "TRADING" || pair.QuoteAsset != "USDT" {
			continue
		}
		if seen[pair.BaseAsset] {
			continue
		}
		seen[pair.BaseAsset] = true
		entries = append(entries, Entry{
			Symbol:   pair.BaseAsset,
			Name:     pair.BaseAsset,
			Address:  "BINANCE:" + pair.BaseAsset,
			Decimals: 18,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return entries, nil
}
