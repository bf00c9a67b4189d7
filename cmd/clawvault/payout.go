package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/blockchain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/referral"
)

func payoutCmd() *cobra.Command {
	var (
		flagWallet  string
		flagToken   string
		flagExecute bool
	)

	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Pay out accrued referral credits (dry-run unless --execute)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.PayoutConfigured() {
				return referral.ErrSigningNotConfigured
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ledger, err := referral.NewLedger(cfg.DataDir())
			if err != nil {
				return err
			}
			chains := blockchain.NewClient()
			defer chains.Close()
			if err := chains.AddChain(ctx, cfg.Chain.ChainID, cfg.Chain.RPC); err != nil {
				return fmt.Errorf("connect chain: %w", err)
			}

			payout, err := referral.NewPayout(ledger, blockchain.NewTxService(chains), cfg.Admin.PayoutKey, cfg.Admin.MinPayoutWei)
			if err != nil {
				return err
			}
			payout = payout.WithBalanceReader(chains)

			report, err := payout.Run(ctx, referral.Options{
				ChainID: cfg.Chain.ChainID,
				Wallet:  flagWallet,
				Token:   flagToken,
				Execute: flagExecute,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagWallet, "wallet", "", "only pay this referrer wallet")
	cmd.Flags().StringVar(&flagToken, "token", "", "only pay this token address")
	cmd.Flags().BoolVar(&flagExecute, "execute", false, "actually send transactions (default is dry-run)")
	return cmd
}
