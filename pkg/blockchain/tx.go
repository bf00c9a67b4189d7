package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/clawvault/pkg/logger"
)

// SignerFunc signs an unsigned transaction for the given chain. The holder of
// the private key stays outside this package.
type SignerFunc func(ctx context.Context, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)

// ErrTxReverted is returned by WaitMined when the receipt shows failure.
var ErrTxReverted = errors.New("transaction reverted")

// TxService submits signed transactions through a Client's chain
// connections.
type TxService struct {
	client *Client
}

func NewTxService(client *Client) *TxService {
	return &TxService{client: client}
}

// SubmitRaw fills in nonce, gas price and gas limit, signs via signer and
// broadcasts. gasHint, when positive, skips estimation. Returns the tx hash.
func (s *TxService) SubmitRaw(ctx context.Context, chainID int64, from, to common.Address, value *big.Int, data []byte, gasHint uint64, signer SignerFunc) (string, error) {
	ec, err := s.client.Chain(chainID)
	if err != nil {
		return "", err
	}

	nonce, err := ec.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := ec.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit := gasHint
	if gasLimit == 0 {
		gasLimit, err = ec.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			// Estimation fails on some RPC providers for perfectly valid
			// calls; fall back to a generous fixed limit.
			logger.WarnCF("blockchain", "Gas estimation failed, using fallback", map[string]any{
				"chainId": chainID,
				"error":   err.Error(),
			})
			gasLimit = 500000
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := signer(ctx, big.NewInt(chainID), tx)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	logger.InfoCF("blockchain", "Transaction broadcast", map[string]any{
		"chainId": chainID,
		"hash":    hash,
		"nonce":   nonce,
	})
	return hash, nil
}

// WaitMined polls for the receipt until ctx expires.
func (s *TxService) WaitMined(ctx context.Context, chainID int64, hash string) error {
	ec, err := s.client.Chain(chainID)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	txHash := common.HexToHash(hash)
	for {
		receipt, err := ec.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TransferNative sends amountWei of the chain's native coin.
func (s *TxService) TransferNative(ctx context.Context, chainID int64, from, to common.Address, amountWei *big.Int, signer SignerFunc) (string, error) {
	return s.SubmitRaw(ctx, chainID, from, to, amountWei, nil, 21000, signer)
}

// TransferERC20 sends amountWei of token via transfer calldata.
func (s *TxService) TransferERC20(ctx context.Context, chainID int64, token, from, to common.Address, amountWei *big.Int, signer SignerFunc) (string, error) {
	data, err := PackTransfer(to, amountWei)
	if err != nil {
		return "", err
	}
	return s.SubmitRaw(ctx, chainID, from, token, big.NewInt(0), data, 0, signer)
}
