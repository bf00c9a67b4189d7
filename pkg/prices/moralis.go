package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// moralisTimeout is the default cap on a live-balance lookup so a slow
// indexer never blocks the wallet view; callers fall back to stored balances.
const moralisTimeout = 5 * time.Second

// WalletToken is one token position reported by the balance indexer.
type WalletToken struct {
	Symbol   string
	Name     string
	Balance  string // whole-token decimal string
	Decimals int
	Logo     string
}

// MoralisClient reads live wallet balances from the Moralis indexer.
type MoralisClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewMoralisClient(baseURL, apiKey string) *MoralisClient {
	return &MoralisClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: moralisTimeout,
		http:    &http.Client{Timeout: moralisTimeout},
	}
}

// WithTimeout overrides the per-lookup cap. Non-positive keeps the default.
func (m *MoralisClient) WithTimeout(d time.Duration) *MoralisClient {
	if d > 0 {
		m.timeout = d
		m.http.Timeout = d
	}
	return m
}

// Configured reports whether an API key is present.
func (m *MoralisClient) Configured() bool {
	return m.apiKey != ""
}

type moralisTokenRow struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Balance  string `json:"balance"` // raw wei string
	Decimals int    `json:"decimals"`
	Logo     string `json:"logo"`
	Spam     bool   `json:"possible_spam"`
}

// chainSlug maps chain IDs to the indexer's chain parameter.
func chainSlug(chainID int64) string {
	switch chainID {
	case 1:
		return "eth"
	case 56:
		return "bsc"
	case 137:
		return "polygon"
	case 43114:
		return "avalanche"
	case 250:
		return "fantom"
	case 42161:
		return "arbitrum"
	default:
		return fmt.Sprintf("0x%x", chainID)
	}
}

// Balances fetches current ERC-20 positions for address, spam filtered,
// balances converted to whole-token units. The call is capped at the client
// timeout regardless of the parent context.
func (m *MoralisClient) Balances(ctx context.Context, chainID int64, address string) ([]WalletToken, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("chain", chainSlug(chainID))
	u := fmt.Sprintf("%s/api/v2.2/%s/erc20?%s", m.baseURL, address, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", m.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moralis balances: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moralis balances: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var rows []moralisTokenRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("moralis balances: decode: %w", err)
	}

	out := make([]WalletToken, 0, len(rows))
	for _, row := range rows {
		if row.Spam || row.Symbol == "" {
			continue
		}
		out = append(out, WalletToken{
			Symbol:   row.Symbol,
			Name:     row.Name,
			Balance:  weiToWhole(row.Balance, row.Decimals),
			Decimals: row.Decimals,
			Logo:     row.Logo,
		})
	}
	return out, nil
}

// weiToWhole renders a raw integer balance as a whole-token decimal string.
func weiToWhole(wei string, decimals int) string {
	if decimals <= 0 {
		return wei
	}
	neg := false
	if len(wei) > 0 && wei[0] == '-' {
		neg = true
		wei = wei[1:]
	}
	for len(wei) <= decimals {
		wei = "0" + wei
	}
	cut := len(wei) - decimals
	whole, frac := wei[:cut], wei[cut:]
	frac = trimZeroes(frac)
	s := whole
	if frac != "" {
		s += "." + frac
	}
	if neg {
		s = "-" + s
	}
	// normalize leading zeros
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

func trimZeroes(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	return s[:i]
}
