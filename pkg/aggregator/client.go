// Package aggregator is a typed client for the 1inch swap API (v6). Response
// shapes are decoded into explicit structs; anything that does not fit is an
// ErrUpstream, not a silently missing field.
package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"context"

	"golang.org/x/time/rate"

	"github.com/sipeed/clawvault/pkg/logger"
)

// ErrUpstream covers non-2xx answers, transport failures and schema
// mismatches from the aggregator.
var ErrUpstream = errors.New("aggregator upstream error")

// NativeTokenAddress is the all-e sentinel the aggregator uses for a chain's
// native coin.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client against baseURL. rps bounds outbound request
// rate; the public 1inch tier allows roughly one request per second.
func NewClient(baseURL, apiKey string, rps float64) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 3),
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnCF("aggregator", "Upstream error", map[string]any{
			"path":   path,
			"status": resp.StatusCode,
		})
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func chainPath(chainID int64, suffix string) string {
	return fmt.Sprintf("/swap/v6.0/%d%s", chainID, suffix)
}

// Tokens fetches the full token map for a chain, keyed by address.
func (c *Client) Tokens(ctx context.Context, chainID int64) (map[string]Token, error) {
	var resp tokensResponse
	if err := c.get(ctx, chainPath(chainID, "/tokens"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tokens == nil {
		return nil, fmt.Errorf("%w: token list missing", ErrUpstream)
	}
	return resp.Tokens, nil
}

// Quote prices amountWei of src in dst units. feeBps > 0 applies the
// integrator fee the same way the swap builder would.
func (c *Client) Quote(ctx context.Context, chainID int64, src, dst, amountWei string, feeBps int) (*Quote, error) {
	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amountWei)
	if feeBps > 0 {
		params.Set("fee", feePercent(feeBps))
	}
	var q Quote
	if err := c.get(ctx, chainPath(chainID, "/quote"), params, &q); err != nil {
		return nil, err
	}
	if q.DstAmount == "" {
		return nil, fmt.Errorf("%w: quote missing dstAmount", ErrUpstream)
	}
	return &q, nil
}

// Spender returns the router address approvals must target.
func (c *Client) Spender(ctx context.Context, chainID int64) (string, error) {
	var resp spenderResponse
	if err := c.get(ctx, chainPath(chainID, "/approve/spender"), nil, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("%w: spender missing address", ErrUpstream)
	}
	return resp.Address, nil
}

// Allowance reads the current router allowance for wallet over token.
func (c *Client) Allowance(ctx context.Context, chainID int64, token, wallet string) (*big.Int, error) {
	params := url.Values{}
	params.Set("tokenAddress", token)
	params.Set("walletAddress", wallet)
	var resp allowanceResponse
	if err := c.get(ctx, chainPath(chainID, "/approve/allowance"), params, &resp); err != nil {
		return nil, err
	}
	allowance, ok := new(big.Int).SetString(resp.Allowance, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad allowance %q", ErrUpstream, resp.Allowance)
	}
	return allowance, nil
}

// SwapTx builds the swap transaction for p.
func (c *Client) SwapTx(ctx context.Context, chainID int64, p SwapParams) (*SwapBuild, error) {
	params := url.Values{}
	params.Set("src", p.Src)
	params.Set("dst", p.Dst)
	params.Set("amount", p.AmountWei)
	params.Set("from", p.From)
	params.Set("slippage", strconv.FormatFloat(p.SlippagePct, 'f', -1, 64))
	if p.FeeBps > 0 {
		params.Set("fee", feePercent(p.FeeBps))
	}
	if p.Referrer != "" {
		params.Set("referrer", p.Referrer)
	}
	var build SwapBuild
	if err := c.get(ctx, chainPath(chainID, "/swap"), params, &build); err != nil {
		return nil, err
	}
	if build.Tx.To == "" || build.Tx.Data == "" {
		return nil, fmt.Errorf("%w: swap tx incomplete", ErrUpstream)
	}
	return &build, nil
}

func feePercent(bps int) string {
	return strconv.FormatFloat(float64(bps)/100, 'f', -1, 64)
}
