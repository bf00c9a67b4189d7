package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// RefCodeMap maps referral codes to payout wallet addresses. It accepts either
// a JSON object or a JSON-encoded string holding an object, so the value can be
// supplied both in the config file and through a single env var.
type RefCodeMap map[string]string

func (m *RefCodeMap) UnmarshalJSON(data []byte) error {
	var direct map[string]string
	if err := json.Unmarshal(data, &direct); err == nil {
		*m = direct
		return nil
	}

	var nested string
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	if nested == "" {
		*m = RefCodeMap{}
		return nil
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(nested), &parsed); err != nil {
		return fmt.Errorf("ref code map: %w", err)
	}
	*m = parsed
	return nil
}

type Config struct {
	Server     ServerConfig     `json:"server"`
	Data       DataConfig       `json:"data"`
	Chain      ChainConfig      `json:"chain"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Binance    BinanceConfig    `json:"binance"`
	Moralis    MoralisConfig    `json:"moralis"`
	Admin      AdminConfig      `json:"admin"`
	Referral   ReferralConfig   `json:"referral"`
	Swap       SwapConfig       `json:"swap"`
	Prices     PricesConfig     `json:"prices"`
}

type ServerConfig struct {
	Host string `json:"host" env:"CLAWVAULT_SERVER_HOST"`
	Port int    `json:"port" env:"CLAWVAULT_SERVER_PORT"`
}

type DataConfig struct {
	Dir string `json:"dir" env:"CLAWVAULT_DATA_DIR"`
}

type ChainConfig struct {
	Name         string `json:"name" env:"CLAWVAULT_CHAIN_NAME"`
	ChainID      int64  `json:"chain_id" env:"CLAWVAULT_CHAIN_ID"`
	RPC          string `json:"rpc" env:"CLAWVAULT_CHAIN_RPC"`
	NativeSymbol string `json:"native_symbol" env:"CLAWVAULT_CHAIN_NATIVE_SYMBOL"`
}

type AggregatorConfig struct {
	BaseURL string  `json:"base_url" env:"CLAWVAULT_AGGREGATOR_BASE_URL"`
	APIKey  string  `json:"api_key" env:"CLAWVAULT_AGGREGATOR_API_KEY"`
	RPS     float64 `json:"rps" env:"CLAWVAULT_AGGREGATOR_RPS"`
}

type BinanceConfig struct {
	BaseURL string `json:"base_url" env:"CLAWVAULT_BINANCE_BASE_URL"`
}

type MoralisConfig struct {
	BaseURL string `json:"base_url" env:"CLAWVAULT_MORALIS_BASE_URL"`
	APIKey  string `json:"api_key" env:"CLAWVAULT_MORALIS_API_KEY"`
	Chain   string `json:"chain" env:"CLAWVAULT_MORALIS_CHAIN"`
}

type AdminConfig struct {
	APIToken     string `json:"api_token" env:"CLAWVAULT_ADMIN_API_TOKEN"`
	PayoutKey    string `json:"payout_key" env:"CLAWVAULT_ADMIN_PAYOUT_KEY"`
	MinPayoutWei string `json:"min_payout_wei" env:"CLAWVAULT_ADMIN_MIN_PAYOUT_WEI"`
}

type ReferralConfig struct {
	CodeMap        RefCodeMap `json:"code_map" env:"CLAWVAULT_REFERRAL_CODE_MAP"`
	CreditShareBps int        `json:"credit_share_bps" env:"CLAWVAULT_REFERRAL_CREDIT_SHARE_BPS"`
}

type SwapConfig struct {
	SlippagePct      float64 `json:"slippage_pct" env:"CLAWVAULT_SWAP_SLIPPAGE_PCT"`
	IntegratorFeeBps int     `json:"integrator_fee_bps" env:"CLAWVAULT_SWAP_INTEGRATOR_FEE_BPS"`
}

type PricesConfig struct {
	CacheTTLSeconds     int `json:"cache_ttl_seconds" env:"CLAWVAULT_PRICES_CACHE_TTL_SECONDS"`
	CatalogTTLHours     int `json:"catalog_ttl_hours" env:"CLAWVAULT_PRICES_CATALOG_TTL_HOURS"`
	FallbackBudgetMs    int `json:"fallback_budget_ms" env:"CLAWVAULT_PRICES_FALLBACK_BUDGET_MS"`
	FallbackCallMs      int `json:"fallback_call_ms" env:"CLAWVAULT_PRICES_FALLBACK_CALL_MS"`
	FallbackMaxAttempts int `json:"fallback_max_attempts" env:"CLAWVAULT_PRICES_FALLBACK_MAX_ATTEMPTS"`
	BalanceRefreshMs    int `json:"balance_refresh_ms" env:"CLAWVAULT_PRICES_BALANCE_REFRESH_MS"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Data: DataConfig{
			Dir: "~/.clawvault/data",
		},
		Chain: ChainConfig{
			Name:         "bsc",
			ChainID:      56,
			RPC:          "",
			NativeSymbol: "BNB",
		},
		Aggregator: AggregatorConfig{
			BaseURL: "https://api.1inch.dev",
			APIKey:  "",
			RPS:     1,
		},
		Binance: BinanceConfig{
			BaseURL: "https://api.binance.com",
		},
		Moralis: MoralisConfig{
			BaseURL: "https://deep-index.moralis.io/api/v2.2",
			APIKey:  "",
			Chain:   "bsc",
		},
		Admin: AdminConfig{
			APIToken:     "",
			PayoutKey:    "",
			MinPayoutWei: "0",
		},
		Referral: ReferralConfig{
			CodeMap:        RefCodeMap{},
			CreditShareBps: 3000,
		},
		Swap: SwapConfig{
			SlippagePct:      1,
			IntegratorFeeBps: 100,
		},
		Prices: PricesConfig{
			CacheTTLSeconds:     60,
			CatalogTTLHours:     6,
			FallbackBudgetMs:    8000,
			FallbackCallMs:      3000,
			FallbackMaxAttempts: 12,
			BalanceRefreshMs:    5000,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// DataDir returns the resolved data root with ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Data.Dir)
}

// StubMode reports whether live swap infrastructure is missing. Without an
// aggregator key and a chain RPC endpoint the swap engine degrades to stub
// responses: PIN checks still run, transactions do not.
func (c *Config) StubMode() bool {
	return c.Aggregator.APIKey == "" || c.Chain.RPC == ""
}

// PayoutConfigured reports whether the referral payout path can sign and send.
func (c *Config) PayoutConfigured() bool {
	return c.Admin.PayoutKey != "" && c.Chain.RPC != ""
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
