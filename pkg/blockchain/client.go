// ClawVault - custodial EVM wallet backend
// Package blockchain maintains JSON-RPC connections per chain and submits
// signed transactions for payouts and swaps.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sipeed/clawvault/pkg/logger"
)

// ErrChainNotConfigured is returned when no RPC endpoint has been registered
// for the requested chain.
var ErrChainNotConfigured = errors.New("chain not configured")

// Client holds one ethclient per chain ID.
type Client struct {
	mu     sync.RWMutex
	chains map[int64]*ethclient.Client
}

func NewClient() *Client {
	return &Client{chains: make(map[int64]*ethclient.Client)}
}

// AddChain dials rpcURL and verifies the endpoint actually serves chainID
// before registering it.
func (c *Client) AddChain(ctx context.Context, chainID int64, rpcURL string) error {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial chain %d: %w", chainID, err)
	}

	got, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return fmt.Errorf("query chain id: %w", err)
	}
	if got.Int64() != chainID {
		ec.Close()
		return fmt.Errorf("rpc endpoint serves chain %d, expected %d", got.Int64(), chainID)
	}

	c.mu.Lock()
	c.chains[chainID] = ec
	c.mu.Unlock()

	logger.InfoCF("blockchain", "Chain registered", map[string]any{
		"chainId": chainID,
	})
	return nil
}

// Chain returns the registered client for chainID.
func (c *Client) Chain(chainID int64) (*ethclient.Client, error) {
	c.mu.RLock()
	ec := c.chains[chainID]
	c.mu.RUnlock()
	if ec == nil {
		return nil, fmt.Errorf("%w: %d", ErrChainNotConfigured, chainID)
	}
	return ec, nil
}

// HasChain reports whether chainID is registered.
func (c *Client) HasChain(chainID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chains[chainID] != nil
}

// Close disconnects every registered chain.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ec := range c.chains {
		ec.Close()
		delete(c.chains, id)
	}
}

// NativeBalance reads the native coin balance of addr in wei.
func (c *Client) NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error) {
	ec, err := c.Chain(chainID)
	if err != nil {
		return nil, err
	}
	return ec.BalanceAt(ctx, addr, nil)
}

// ERC20Balance calls balanceOf(addr) on the token contract.
func (c *Client) ERC20Balance(ctx context.Context, chainID int64, token, addr common.Address) (*big.Int, error) {
	ec, err := c.Chain(chainID)
	if err != nil {
		return nil, err
	}
	data, err := PackBalanceOf(addr)
	if err != nil {
		return nil, err
	}
	out, err := ec.CallContract(ctx, callMsg(token, data), nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}
