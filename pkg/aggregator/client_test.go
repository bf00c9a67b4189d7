package aggregator

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 1000)
}

func TestClient_Tokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v6.0/56/tokens", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"tokens":{"0xabc":{"symbol":"USDT","name":"Tether","address":"0xabc","decimals":18}}}`))
	})

	tokens, err := c.Tokens(context.Background(), 56)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "USDT", tokens["0xabc"].Symbol)
	assert.Equal(t, 18, tokens["0xabc"].Decimals)
}

func TestClient_QuoteWithFee(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "0xsrc", q.Get("src"))
		assert.Equal(t, "0xdst", q.Get("dst"))
		assert.Equal(t, "1000000", q.Get("amount"))
		assert.Equal(t, "1", q.Get("fee")) // 100 bps == 1%
		w.Write([]byte(`{"dstAmount":"990000","gas":210000}`))
	})

	quote, err := c.Quote(context.Background(), 56, "0xsrc", "0xdst", "1000000", 100)
	require.NoError(t, err)
	assert.Equal(t, "990000", quote.DstAmount)
	assert.Equal(t, int64(210000), quote.Gas)
}

func TestClient_QuoteOmitsZeroFee(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("fee"))
		w.Write([]byte(`{"dstAmount":"1000000"}`))
	})
	_, err := c.Quote(context.Background(), 56, "a", "b", "1", 0)
	require.NoError(t, err)
}

func TestClient_Allowance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v6.0/56/approve/allowance", r.URL.Path)
		w.Write([]byte(`{"allowance":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}`))
	})

	allowance, err := c.Allowance(context.Background(), 56, "0xtoken", "0xwallet")
	require.NoError(t, err)
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	assert.Zero(t, allowance.Cmp(max))
}

func TestClient_SwapTx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("slippage"))
		assert.Equal(t, "0xref", q.Get("referrer"))
		w.Write([]byte(`{"dstAmount":"42","tx":{"to":"0xrouter","data":"0xdead","value":"0","gas":300000,"gasPrice":"5000000000"}}`))
	})

	build, err := c.SwapTx(context.Background(), 56, SwapParams{
		Src: "a", Dst: "b", AmountWei: "1", From: "0xme",
		SlippagePct: 1, FeeBps: 100, Referrer: "0xref",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xrouter", build.Tx.To)
	assert.Equal(t, "42", build.DstAmount)
}

func TestClient_UpstreamErrors(t *testing.T) {
	t.Run("http 500", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := c.Tokens(context.Background(), 56)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"unexpected":true}`))
		})
		_, err := c.Quote(context.Background(), 56, "a", "b", "1", 0)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("bad allowance digits", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"allowance":"0xnothex"}`))
		})
		_, err := c.Allowance(context.Background(), 56, "t", "w")
		assert.ErrorIs(t, err, ErrUpstream)
	})
}
