package referral

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sipeed/clawvault/pkg/aggregator"
	"github.com/sipeed/clawvault/pkg/blockchain"
	"github.com/sipeed/clawvault/pkg/logger"
)

// ErrSigningNotConfigured means no treasury key is available for payouts.
var ErrSigningNotConfigured = errors.New("payout signing not configured")

// Entry statuses in a payout report.
const (
	StatusPaid    = "paid"
	StatusPlanned = "planned"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Sender submits treasury transfers. Satisfied by blockchain.TxService.
type Sender interface {
	TransferNative(ctx context.Context, chainID int64, from, to common.Address, amountWei *big.Int, signer blockchain.SignerFunc) (string, error)
	TransferERC20(ctx context.Context, chainID int64, token, from, to common.Address, amountWei *big.Int, signer blockchain.SignerFunc) (string, error)
	WaitMined(ctx context.Context, chainID int64, hash string) error
}

// BalanceReader checks treasury funding before a send. Satisfied by
// blockchain.Client.
type BalanceReader interface {
	NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error)
	ERC20Balance(ctx context.Context, chainID int64, token, addr common.Address) (*big.Int, error)
}

// ReportEntry is the outcome for one wallet/token accrual.
type ReportEntry struct {
	Wallet    string `json:"wallet"`
	ChainID   int64  `json:"chainId"`
	Token     string `json:"token"`
	AmountWei string `json:"amountWei"`
	Status    string `json:"status"`
	TxHash    string `json:"txHash,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the result of one payout run.
type Report struct {
	DryRun  bool          `json:"dryRun"`
	Entries []ReportEntry `json:"entries"`
}

// Options narrows a payout run. Zero values mean "everything on ChainID".
type Options struct {
	ChainID int64
	Wallet  string
	Token   string
	Execute bool
}

// Payout drains accrued credits to their referrer wallets from the
// treasury key, sequentially, deducting only what was actually paid.
type Payout struct {
	ledger    *Ledger
	sender    Sender
	balances  BalanceReader
	treasury  common.Address
	signer    blockchain.SignerFunc
	minPayout *big.Int
}

// WithBalanceReader enables the treasury funding precheck.
func (p *Payout) WithBalanceReader(r BalanceReader) *Payout {
	p.balances = r
	return p
}

// NewPayout parses the treasury private key. An empty key yields
// ErrSigningNotConfigured.
func NewPayout(ledger *Ledger, sender Sender, treasuryKeyHex, minPayoutWei string) (*Payout, error) {
	if treasuryKeyHex == "" {
		return nil, ErrSigningNotConfigured
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(treasuryKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}

	min := big.NewInt(0)
	if minPayoutWei != "" {
		parsed, ok := new(big.Int).SetString(minPayoutWei, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, fmt.Errorf("bad minimum payout %q", minPayoutWei)
		}
		min = parsed
	}

	signer := func(ctx context.Context, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
		return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	}
	return &Payout{
		ledger:    ledger,
		sender:    sender,
		treasury:  crypto.PubkeyToAddress(key.PublicKey),
		signer:    signer,
		minPayout: min,
	}, nil
}

// Treasury is the payout source address.
func (p *Payout) Treasury() common.Address {
	return p.treasury
}

type paidKey struct {
	wallet, chain, token string
}

// Run walks the ledger and pays matching accruals one at a time. The ledger
// is persisted exactly once at the end, with paid amounts deducted from the
// then-current balances; failed or skipped entries keep their balance.
func (p *Payout) Run(ctx context.Context, opts Options) (*Report, error) {
	book, err := p.ledger.Read()
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: !opts.Execute}
	paid := map[paidKey]*big.Int{}
	chainKey := strconv.FormatInt(opts.ChainID, 10)
	nativeLower := strings.ToLower(aggregator.NativeTokenAddress)

	wallets := make([]string, 0, len(book))
	for w := range book {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	for _, wallet := range wallets {
		if opts.Wallet != "" && !strings.EqualFold(opts.Wallet, wallet) {
			continue
		}
		byToken := book[wallet][chainKey]
		tokens := make([]string, 0, len(byToken))
		for t := range byToken {
			tokens = append(tokens, t)
		}
		sort.Strings(tokens)

		for _, token := range tokens {
			if opts.Token != "" && !strings.EqualFold(opts.Token, token) {
				continue
			}
			entry := ReportEntry{
				Wallet:    wallet,
				ChainID:   opts.ChainID,
				Token:     token,
				AmountWei: byToken[token],
			}
			amount, ok := new(big.Int).SetString(byToken[token], 10)
			if !ok || amount.Sign() <= 0 {
				continue
			}
			if amount.Cmp(p.minPayout) < 0 {
				entry.Status = StatusSkipped
				entry.Error = "below minimum payout"
				report.Entries = append(report.Entries, entry)
				continue
			}
			if !opts.Execute {
				entry.Status = StatusPlanned
				report.Entries = append(report.Entries, entry)
				continue
			}

			hash, err := p.send(ctx, opts.ChainID, wallet, token, nativeLower, amount)
			if err != nil {
				entry.Status = StatusFailed
				entry.Error = err.Error()
				logger.ErrorCF("referral", "Payout failed", map[string]any{
					"wallet": wallet,
					"token":  token,
					"error":  err.Error(),
				})
				report.Entries = append(report.Entries, entry)
				continue
			}
			entry.Status = StatusPaid
			entry.TxHash = hash
			report.Entries = append(report.Entries, entry)
			paid[paidKey{wallet, chainKey, token}] = amount
			logger.InfoCF("referral", "Payout sent", map[string]any{
				"wallet": wallet,
				"token":  token,
				"amount": amount.String(),
				"tx":     hash,
			})
		}
	}

	if len(paid) > 0 {
		// subtract what was sent from the current balance: credits accrued
		// while transfers were in flight survive the settlement
		err := p.ledger.Update(func(b Book) {
			for k, sent := range paid {
				if b[k.wallet] == nil || b[k.wallet][k.chain] == nil {
					continue
				}
				cur, ok := new(big.Int).SetString(b[k.wallet][k.chain][k.token], 10)
				if !ok {
					cur = new(big.Int)
				}
				remaining := new(big.Int).Sub(cur, sent)
				if remaining.Sign() < 0 {
					remaining.SetInt64(0)
				}
				b[k.wallet][k.chain][k.token] = remaining.String()
			}
		})
		if err != nil {
			return report, fmt.Errorf("persist payout results: %w", err)
		}
	}
	return report, nil
}

func (p *Payout) send(ctx context.Context, chainID int64, wallet, token, nativeLower string, amount *big.Int) (string, error) {
	to := common.HexToAddress(wallet)

	if p.balances != nil {
		var funds *big.Int
		var err error
		if token == nativeLower {
			funds, err = p.balances.NativeBalance(ctx, chainID, p.treasury)
		} else {
			funds, err = p.balances.ERC20Balance(ctx, chainID, common.HexToAddress(token), p.treasury)
		}
		if err != nil {
			return "", fmt.Errorf("check treasury balance: %w", err)
		}
		if funds.Cmp(amount) < 0 {
			return "", fmt.Errorf("treasury holds %s, needs %s", funds, amount)
		}
	}

	var hash string
	var err error
	if token == nativeLower {
		hash, err = p.sender.TransferNative(ctx, chainID, p.treasury, to, amount, p.signer)
	} else {
		hash, err = p.sender.TransferERC20(ctx, chainID, common.HexToAddress(token), p.treasury, to, amount, p.signer)
	}
	if err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := p.sender.WaitMined(waitCtx, chainID, hash); err != nil {
		return "", err
	}
	return hash, nil
}
