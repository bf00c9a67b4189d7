package swap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/clawvault/pkg/aggregator"
	"github.com/sipeed/clawvault/pkg/blockchain"
	"github.com/sipeed/clawvault/pkg/cryptobox"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/referral"
	"github.com/sipeed/clawvault/pkg/tokens"
	"github.com/sipeed/clawvault/pkg/wallet"
)

// Request is one user swap order. Amount is in whole src tokens.
type Request struct {
	UserID           string `json:"userId"`
	FromToken        string `json:"fromToken"`
	ToToken          string `json:"toToken"`
	Amount           string `json:"amount"`
	PIN              string `json:"pin"`
	InfiniteApproval bool   `json:"infiniteApproval,omitempty"`
	ReferralCode     string `json:"refCode,omitempty"`
}

// Result reports a submitted swap. Fee and credit are in dst token wei and
// zero when no fee applies.
type Result struct {
	TxHash    string `json:"txHash"`
	DstAmount string `json:"dstAmount,omitempty"`
	FeeWei    string `json:"feeWei,omitempty"`
	CreditWei string `json:"creditWei,omitempty"`
	Stub      bool   `json:"stub,omitempty"`
}

// Config carries the swap engine's chain and fee policy.
type Config struct {
	ChainID        int64
	SlippagePct    float64
	FeeBps         int
	CreditShareBps int
	FeeReceiver    string // treasury address passed to the aggregator
	RefCodes       map[string]string
	Stub           bool // no aggregator key or RPC: validate, then fake the tx
}

// Engine executes swaps for custodial wallets.
type Engine struct {
	cfg      Config
	store    *wallet.Store
	resolver *tokens.Resolver
	agg      *aggregator.Client
	txs      *blockchain.TxService
	ledger   *referral.Ledger
}

func NewEngine(cfg Config, store *wallet.Store, resolver *tokens.Resolver, agg *aggregator.Client, txs *blockchain.TxService, ledger *referral.Ledger) *Engine {
	return &Engine{cfg: cfg, store: store, resolver: resolver, agg: agg, txs: txs, ledger: ledger}
}

// Quote prices a prospective swap without touching any wallet.
func (e *Engine) Quote(ctx context.Context, fromToken, toToken, amount string) (*aggregator.Quote, error) {
	src, err := e.resolver.Resolve(ctx, fromToken, e.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	dst, err := e.resolver.Resolve(ctx, toToken, e.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	amountWei, err := ToWei(amount, src.Decimals)
	if err != nil {
		return nil, err
	}
	return e.agg.Quote(ctx, e.cfg.ChainID, src.Address, dst.Address, amountWei.String(), e.cfg.FeeBps)
}

// Execute runs the full swap flow. The amount is validated before any wallet
// access, so malformed requests leave no trace.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	if _, err := parsePositiveDecimal(req.Amount); err != nil {
		return nil, err
	}

	rec, err := e.store.Read(req.UserID)
	if err != nil {
		return nil, err
	}
	mnemonic, err := cryptobox.Decrypt(rec.EncryptedMnemonic, req.PIN)
	if err != nil {
		if errors.Is(err, cryptobox.ErrAuthenticationFailed) {
			return nil, wallet.ErrInvalidPIN
		}
		return nil, err
	}

	src, err := e.resolver.Resolve(ctx, req.FromToken, e.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	dst, err := e.resolver.Resolve(ctx, req.ToToken, e.cfg.ChainID)
	if err != nil {
		return nil, err
	}

	if e.cfg.Stub {
		hash, err := randomTxHash()
		if err != nil {
			return nil, err
		}
		logger.InfoCF("swap", "Stub swap executed", map[string]any{
			"userId": req.UserID,
			"from":   src.Symbol,
			"to":     dst.Symbol,
		})
		return &Result{TxHash: hash, Stub: true}, nil
	}

	key, addr, err := wallet.DeriveKey(mnemonic)
	if err != nil {
		return nil, err
	}
	signer := func(ctx context.Context, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
		return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	}

	amountWei, err := ToWei(req.Amount, src.Decimals)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(src.Address, aggregator.NativeTokenAddress) {
		if err := e.ensureAllowance(ctx, src.Address, addr, amountWei, req.InfiniteApproval, signer); err != nil {
			return nil, err
		}
	}

	feeWei, dstAmount := e.measureFee(ctx, src.Address, dst.Address, amountWei.String())

	build, err := e.agg.SwapTx(ctx, e.cfg.ChainID, aggregator.SwapParams{
		Src:         src.Address,
		Dst:         dst.Address,
		AmountWei:   amountWei.String(),
		From:        addr.Hex(),
		SlippagePct: e.cfg.SlippagePct,
		FeeBps:      e.cfg.FeeBps,
		Referrer:    e.cfg.FeeReceiver,
	})
	if err != nil {
		return nil, err
	}

	hash, err := e.submit(ctx, addr, build.Tx, signer)
	if err != nil {
		return nil, err
	}

	credit := e.accrueCredit(req.ReferralCode, dst.Address, feeWei)
	logger.InfoCF("swap", "Swap submitted", map[string]any{
		"userId": req.UserID,
		"from":   src.Symbol,
		"to":     dst.Symbol,
		"tx":     hash,
	})
	return &Result{
		TxHash:    hash,
		DstAmount: dstAmount,
		FeeWei:    feeWei.String(),
		CreditWei: credit.String(),
	}, nil
}

// ensureAllowance approves the router when the current allowance cannot
// cover amountWei, and waits for the approval to mine before trading.
func (e *Engine) ensureAllowance(ctx context.Context, token string, owner common.Address, amountWei *big.Int, infinite bool, signer blockchain.SignerFunc) error {
	allowance, err := e.agg.Allowance(ctx, e.cfg.ChainID, token, owner.Hex())
	if err != nil {
		return err
	}
	if allowance.Cmp(amountWei) >= 0 {
		return nil
	}

	spender, err := e.agg.Spender(ctx, e.cfg.ChainID)
	if err != nil {
		return err
	}
	approveAmount := amountWei
	if infinite {
		approveAmount = abi.MaxUint256
	}
	data, err := blockchain.PackApprove(common.HexToAddress(spender), approveAmount)
	if err != nil {
		return err
	}
	hash, err := e.txs.SubmitRaw(ctx, e.cfg.ChainID, owner, common.HexToAddress(token), big.NewInt(0), data, 0, signer)
	if err != nil {
		return fmt.Errorf("submit approval: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := e.txs.WaitMined(waitCtx, e.cfg.ChainID, hash); err != nil {
		return fmt.Errorf("approval %s: %w", hash, err)
	}
	return nil
}

// measureFee quotes the trade with and without the integrator fee in
// parallel; the difference is the fee in dst wei. Fee measurement only
// feeds reporting and referral credit, so any failure degrades to a zero
// fee instead of failing the swap.
func (e *Engine) measureFee(ctx context.Context, src, dst, amountWei string) (*big.Int, string) {
	if e.cfg.FeeBps <= 0 {
		q, err := e.agg.Quote(ctx, e.cfg.ChainID, src, dst, amountWei, 0)
		if err != nil {
			logger.WarnCF("swap", "Quote unavailable, continuing without it", map[string]any{
				"error": err.Error(),
			})
			return big.NewInt(0), ""
		}
		return big.NewInt(0), q.DstAmount
	}

	var (
		wg               sync.WaitGroup
		withFee, noFee   *aggregator.Quote
		errFee, errNoFee error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		withFee, errFee = e.agg.Quote(ctx, e.cfg.ChainID, src, dst, amountWei, e.cfg.FeeBps)
	}()
	go func() {
		defer wg.Done()
		noFee, errNoFee = e.agg.Quote(ctx, e.cfg.ChainID, src, dst, amountWei, 0)
	}()
	wg.Wait()
	if errFee != nil || errNoFee != nil {
		logger.WarnCF("swap", "Fee measurement failed, continuing without fee", map[string]any{
			"error": errors.Join(errFee, errNoFee).Error(),
		})
		return big.NewInt(0), ""
	}

	with, ok1 := new(big.Int).SetString(withFee.DstAmount, 10)
	without, ok2 := new(big.Int).SetString(noFee.DstAmount, 10)
	if !ok1 || !ok2 {
		logger.WarnCF("swap", "Fee measurement failed, continuing without fee", map[string]any{
			"error": "unparseable quote amounts",
		})
		return big.NewInt(0), ""
	}
	fee := new(big.Int).Sub(without, with)
	if fee.Sign() < 0 {
		fee.SetInt64(0)
	}
	return fee, withFee.DstAmount
}

func (e *Engine) submit(ctx context.Context, from common.Address, tx aggregator.TxData, signer blockchain.SignerFunc) (string, error) {
	to := common.HexToAddress(tx.To)
	value := big.NewInt(0)
	if tx.Value != "" {
		parsed, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return "", fmt.Errorf("bad tx value %q", tx.Value)
		}
		value = parsed
	}
	data := common.FromHex(tx.Data)
	gas := uint64(0)
	if tx.Gas > 0 {
		gas = uint64(tx.Gas)
	}
	return e.txs.SubmitRaw(ctx, e.cfg.ChainID, from, to, value, data, gas, signer)
}

// accrueCredit books the referrer's share of the fee. Failures are logged,
// never surfaced: the user's swap already went through.
func (e *Engine) accrueCredit(code, dstToken string, feeWei *big.Int) *big.Int {
	credit := CreditShare(feeWei, e.cfg.CreditShareBps)
	if credit.Sign() <= 0 {
		return credit
	}
	target := referral.ResolveCode(code, e.cfg.RefCodes)
	if target == "" {
		return big.NewInt(0)
	}
	if err := e.ledger.AddCredit(target, e.cfg.ChainID, dstToken, credit); err != nil {
		logger.WarnCF("swap", "Referral credit not recorded", map[string]any{
			"wallet": target,
			"error":  err.Error(),
		})
		return big.NewInt(0)
	}
	return credit
}

func parsePositiveDecimal(amount string) (*big.Int, error) {
	// 18 fractional digits is enough to reject garbage and zero amounts
	// before any token-specific precision is known
	return ToWei(amount, 18)
}

func randomTxHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf), nil
}
