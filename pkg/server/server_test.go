package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/cryptobox"
	"github.com/sipeed/clawvault/pkg/features"
	"github.com/sipeed/clawvault/pkg/prices"
	"github.com/sipeed/clawvault/pkg/referral"
	"github.com/sipeed/clawvault/pkg/swap"
	"github.com/sipeed/clawvault/pkg/tokens"
	"github.com/sipeed/clawvault/pkg/wallet"
)

const (
	adminToken   = "sesame"
	testMnemonic = "test test test test test test test test test test test junk"
	testAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type fixedSource struct{ entries []tokens.Entry }

func (f *fixedSource) FetchCatalog(ctx context.Context, chainID int64) ([]tokens.Entry, error) {
	return f.entries, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dataDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Data.Dir = dataDir
	cfg.Admin.APIToken = adminToken

	store, err := wallet.NewStore(dataDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	catalog, err := tokens.NewCatalog(dataDir, time.Hour, &fixedSource{entries: []tokens.Entry{
		{Symbol: "CAKE", Name: "PancakeSwap", Address: "0xcake", Decimals: 18},
		{Symbol: "USDT", Name: "Tether USD", Address: "0xusdt", Decimals: 18},
	}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	t.Cleanup(catalog.Close)

	ledger, err := referral.NewLedger(dataDir)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	flags, err := features.NewStore(dataDir)
	if err != nil {
		t.Fatalf("features.NewStore: %v", err)
	}

	// dead market-data endpoint: only stablecoin pricing works in tests
	deadMarket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(deadMarket.Close)
	oracle := prices.NewOracle(prices.NewBinanceClient(deadMarket.URL), prices.NewCache(time.Minute), nil)

	resolver := tokens.NewResolver(catalog, cfg.Chain.NativeSymbol)
	engine := swap.NewEngine(swap.Config{
		ChainID:        cfg.Chain.ChainID,
		SlippagePct:    cfg.Swap.SlippagePct,
		FeeBps:         cfg.Swap.IntegratorFeeBps,
		CreditShareBps: cfg.Referral.CreditShareBps,
		Stub:           true,
	}, store, resolver, nil, nil, nil)

	return New(Deps{
		Config:   cfg,
		Store:    store,
		Oracle:   oracle,
		Catalog:  catalog,
		Resolver: resolver,
		Engine:   engine,
		Ledger:   ledger,
		Flags:    flags,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["status"] != "ok" {
		t.Error("missing ok status")
	}
}

func TestWalletSaveAndInfo(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodPost, "/api/wallet/save-created", `{
		"userId":"u1","walletAddress":"`+testAddress+`","encryptedMnemonic":"blob",
		"tokens":[{"symbol":"USDT","balance":"5"}]
	}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/wallet/info?uid=u1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("info status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["walletAddress"] != testAddress {
		t.Errorf("walletAddress = %v", body["walletAddress"])
	}
	// 5 USDT at the pinned 1.0 stable price
	if body["totalUsd"].(float64) != 5.0 {
		t.Errorf("totalUsd = %v, want 5", body["totalUsd"])
	}
}

func TestWalletSave_MissingFields(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodPost, "/api/wallet/save-created", `{"userId":"u1"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWalletInfo_NotFound(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/wallet/info?uid=ghost", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWalletImport(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodPost, "/api/wallet/import", `{
		"userId":"u2","mnemonic":"`+testMnemonic+`","pin":"1234"
	}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["walletAddress"] != testAddress {
		t.Error("derived address mismatch")
	}
}

func TestWalletImport_AddressMismatch(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodPost, "/api/wallet/import", `{
		"userId":"u2","mnemonic":"`+testMnemonic+`","pin":"1234",
		"walletAddress":"0x0000000000000000000000000000000000000001"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWalletImport_BadPIN(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodPost, "/api/wallet/import", `{
		"userId":"u2","mnemonic":"`+testMnemonic+`","pin":"12"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChangePin(t *testing.T) {
	h := newTestServer(t).Handler()
	do(t, h, http.MethodPost, "/api/wallet/import", `{
		"userId":"u3","mnemonic":"`+testMnemonic+`","pin":"1234"
	}`, nil)

	w := do(t, h, http.MethodPost, "/api/wallet/change-pin", `{
		"userId":"u3","oldPin":"9999","newPin":"5678"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong old pin status = %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/wallet/change-pin", `{
		"userId":"u3","oldPin":"1234","newPin":"5678"
	}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/wallet/change-pin", `{
		"userId":"nobody","oldPin":"1234","newPin":"5678"
	}`, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing wallet status = %d, want 404", w.Code)
	}
}

func TestSwapStubFlow(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	blob, err := cryptobox.Encrypt(testMnemonic, "1234")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	do(t, h, http.MethodPost, "/api/wallet/save-created", `{
		"userId":"u4","walletAddress":"`+testAddress+`","encryptedMnemonic":"`+blob+`"
	}`, nil)

	w := do(t, h, http.MethodPost, "/api/swap/request", `{
		"userId":"u4","fromToken":"BNB","toToken":"USDT","amount":"1","pin":"1234","refCode":"TEAM1"
	}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	hash, _ := decode(t, w)["txHash"].(string)
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		t.Errorf("txHash = %q", hash)
	}

	w = do(t, h, http.MethodPost, "/api/swap/request", `{
		"userId":"u4","fromToken":"BNB","toToken":"USDT","amount":"1","pin":"0000"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong pin status = %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/swap/request", `{
		"userId":"u4","fromToken":"BNB","toToken":"USDT","amount":"-1","pin":"1234"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad amount status = %d, want 400", w.Code)
	}

	// token validation applies even though no swap is actually sent
	w = do(t, h, http.MethodPost, "/api/swap/request", `{
		"userId":"u4","fromToken":"BNB","toToken":"NOPE","amount":"1","pin":"1234"
	}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported token status = %d, want 400", w.Code)
	}
}

func TestPricesEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/prices?symbols=USDT,DAI", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["USDT"].(float64) != 1.0 || body["DAI"].(float64) != 1.0 {
		t.Errorf("prices = %v", body)
	}

	w = do(t, h, http.MethodGet, "/api/prices", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing symbols status = %d, want 400", w.Code)
	}
}

func TestOHLCEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/prices/ohlc?symbol=USDT&interval=1h&limit=5", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	candles := body["candles"].([]any)
	if len(candles) != 5 {
		t.Errorf("candles = %d, want 5", len(candles))
	}
}

func TestTokensEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/tokens", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	listed := body["tokens"].([]any)
	if len(listed) != 2 {
		t.Fatalf("tokens = %d, want 2", len(listed))
	}
	first := listed[0].(map[string]any)
	if first["symbol"] != "USDT" {
		t.Errorf("first token = %v, want USDT (priority sort)", first["symbol"])
	}

	w = do(t, h, http.MethodGet, "/api/tokens?q=pancake", "", nil)
	body = decode(t, w)
	if int(body["count"].(float64)) != 1 {
		t.Errorf("filtered count = %v, want 1", body["count"])
	}
}

func TestQuote_StubModeRejected(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/quote?fromToken=BNB&toToken=USDT&amount=1", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 in stub mode", w.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/referral/ledger", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/referral/ledger", "", map[string]string{"x-admin-token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/referral/ledger", "", map[string]string{"x-admin-token": adminToken})
	if w.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", w.Code)
	}

	// unset token disables the admin surface entirely
	srv.cfg.Admin.APIToken = ""
	w = do(t, h, http.MethodGet, "/api/referral/ledger", "", map[string]string{"x-admin-token": ""})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unset token status = %d, want 401", w.Code)
	}
}

func TestPayout_NotConfigured(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodPost, "/api/referral/payout", `{"dryRun":true}`,
		map[string]string{"x-admin-token": adminToken})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without signing config", w.Code)
	}
}

func TestFeaturesEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodGet, "/api/features", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if decode(t, w)["swapEnabled"] != true {
		t.Error("swapEnabled default not true")
	}

	w = do(t, h, http.MethodPut, "/api/features", `{"swapEnabled":false}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated put status = %d, want 401", w.Code)
	}

	w = do(t, h, http.MethodPut, "/api/features", `{"swapEnabled":false}`,
		map[string]string{"x-admin-token": adminToken})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	if decode(t, w)["swapEnabled"] != false {
		t.Error("flag not flipped")
	}
}

func TestCatalogAdminEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()
	auth := map[string]string{"x-admin-token": adminToken}

	w := do(t, h, http.MethodPost, "/api/admin/tokens/refresh", "", auth)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/admin/tokens/catalog", "", auth)
	if w.Code != http.StatusOK {
		t.Fatalf("catalog status = %d", w.Code)
	}
	body := decode(t, w)
	if int(body["chainId"].(float64)) != 56 {
		t.Errorf("chainId = %v", body["chainId"])
	}
	if body["updatedAt"] == "" {
		t.Error("updatedAt empty after refresh")
	}
}
