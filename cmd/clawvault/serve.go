package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/aggregator"
	"github.com/sipeed/clawvault/pkg/blockchain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/features"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/prices"
	"github.com/sipeed/clawvault/pkg/referral"
	"github.com/sipeed/clawvault/pkg/server"
	"github.com/sipeed/clawvault/pkg/swap"
	"github.com/sipeed/clawvault/pkg/tokens"
	"github.com/sipeed/clawvault/pkg/wallet"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, cleanup, err := wire(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.StubMode() {
				logger.WarnC("serve", "No aggregator key or RPC configured: swaps run in stub mode")
			}
			return server.New(deps).Run(ctx)
		},
	}
}

// wire builds the full collaborator graph from config. The returned cleanup
// closes background workers and RPC connections.
func wire(ctx context.Context, cfg *config.Config) (server.Deps, func(), error) {
	noop := func() {}
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return server.Deps{}, noop, fmt.Errorf("create data dir: %w", err)
	}

	store, err := wallet.NewStore(dataDir)
	if err != nil {
		return server.Deps{}, noop, err
	}
	ledger, err := referral.NewLedger(dataDir)
	if err != nil {
		return server.Deps{}, noop, err
	}
	flags, err := features.NewStore(dataDir)
	if err != nil {
		return server.Deps{}, noop, err
	}

	var agg *aggregator.Client
	var source tokens.Source
	if cfg.Aggregator.APIKey != "" {
		agg = aggregator.NewClient(cfg.Aggregator.BaseURL, cfg.Aggregator.APIKey, cfg.Aggregator.RPS)
		source = tokens.NewAggregatorSource(agg)
	} else {
		source = tokens.NewBinanceSource(cfg.Binance.BaseURL)
	}
	catalog, err := tokens.NewCatalog(dataDir, time.Duration(cfg.Prices.CatalogTTLHours)*time.Hour, source)
	if err != nil {
		return server.Deps{}, noop, err
	}
	resolver := tokens.NewResolver(catalog, cfg.Chain.NativeSymbol)

	var fallback prices.Fallback
	if agg != nil {
		fallback = prices.NewAggregatorFallback(agg, resolver, cfg.Chain.ChainID)
	}
	oracle := prices.NewOracle(
		prices.NewBinanceClient(cfg.Binance.BaseURL),
		prices.NewCache(time.Duration(cfg.Prices.CacheTTLSeconds)*time.Second),
		fallback,
	).WithFallbackPolicy(
		time.Duration(cfg.Prices.FallbackBudgetMs)*time.Millisecond,
		time.Duration(cfg.Prices.FallbackCallMs)*time.Millisecond,
		cfg.Prices.FallbackMaxAttempts,
	)

	var moralis *prices.MoralisClient
	if cfg.Moralis.APIKey != "" {
		moralis = prices.NewMoralisClient(cfg.Moralis.BaseURL, cfg.Moralis.APIKey).
			WithTimeout(time.Duration(cfg.Prices.BalanceRefreshMs) * time.Millisecond)
	}

	chains := blockchain.NewClient()
	var txs *blockchain.TxService
	if cfg.Chain.RPC != "" {
		if err := chains.AddChain(ctx, cfg.Chain.ChainID, cfg.Chain.RPC); err != nil {
			catalog.Close()
			return server.Deps{}, noop, fmt.Errorf("connect chain: %w", err)
		}
		txs = blockchain.NewTxService(chains)
	}

	var payout *referral.Payout
	feeReceiver := ""
	if cfg.PayoutConfigured() {
		payout, err = referral.NewPayout(ledger, txs, cfg.Admin.PayoutKey, cfg.Admin.MinPayoutWei)
		if err != nil {
			catalog.Close()
			chains.Close()
			return server.Deps{}, noop, err
		}
		payout = payout.WithBalanceReader(chains)
		feeReceiver = payout.Treasury().Hex()
	}

	engine := swap.NewEngine(swap.Config{
		ChainID:        cfg.Chain.ChainID,
		SlippagePct:    cfg.Swap.SlippagePct,
		FeeBps:         cfg.Swap.IntegratorFeeBps,
		CreditShareBps: cfg.Referral.CreditShareBps,
		FeeReceiver:    feeReceiver,
		RefCodes:       cfg.Referral.CodeMap,
		Stub:           cfg.StubMode(),
	}, store, resolver, agg, txs, ledger)

	cleanup := func() {
		catalog.Close()
		chains.Close()
	}
	return server.Deps{
		Config:   cfg,
		Store:    store,
		Oracle:   oracle,
		Moralis:  moralis,
		Catalog:  catalog,
		Resolver: resolver,
		Engine:   engine,
		Ledger:   ledger,
		Payout:   payout,
		Flags:    flags,
	}, cleanup, nil
}
