// ClawVault - custodial EVM wallet backend
// Package referral accrues swap-fee credits per referrer wallet and pays
// them out from the treasury key.
package referral

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidWallet rejects credit targets that are not 0x-prefixed
// 40-hex-digit addresses.
var ErrInvalidWallet = errors.New("invalid referrer wallet address")

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Book is the persisted shape: wallet -> chainID -> token (lowercased) ->
// accrued wei as a decimal string.
type Book map[string]map[string]map[string]string

// Ledger is the referral credit store. One mutex spans every
// read-modify-write so concurrent credits never lose increments.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates the referrals directory under dataRoot.
func NewLedger(dataRoot string) (*Ledger, error) {
	dir := filepath.Join(dataRoot, "referrals")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create referrals dir: %w", err)
	}
	return &Ledger{path: filepath.Join(dir, "ledger.json")}, nil
}

func (l *Ledger) loadLocked() (Book, error) {
	raw, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return Book{}, nil
	}
	if err != nil {
		return nil, err
	}
	var book Book
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if book == nil {
		book = Book{}
	}
	return book, nil
}

func (l *Ledger) saveLocked(book Book) error {
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// AddCredit accrues amountWei for wallet on chainID/token. A nil or
// non-positive amount is a silent no-op; a malformed wallet is an error.
func (l *Ledger) AddCredit(wallet string, chainID int64, token string, amountWei *big.Int) error {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil
	}
	if !walletPattern.MatchString(wallet) {
		return fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.loadLocked()
	if err != nil {
		return err
	}

	chainKey := strconv.FormatInt(chainID, 10)
	tokenKey := strings.ToLower(token)
	if book[wallet] == nil {
		book[wallet] = map[string]map[string]string{}
	}
	if book[wallet][chainKey] == nil {
		book[wallet][chainKey] = map[string]string{}
	}

	current := big.NewInt(0)
	if prev := book[wallet][chainKey][tokenKey]; prev != "" {
		if parsed, ok := new(big.Int).SetString(prev, 10); ok {
			current = parsed
		}
	}
	book[wallet][chainKey][tokenKey] = new(big.Int).Add(current, amountWei).String()
	return l.saveLocked(book)
}

// Read returns the whole book.
func (l *Ledger) Read() (Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked()
}

// Credits returns one wallet's accruals, nil if it has none.
func (l *Ledger) Credits(wallet string) (map[string]map[string]string, error) {
	book, err := l.Read()
	if err != nil {
		return nil, err
	}
	return book[wallet], nil
}

// Update applies fn to the book under the lock and persists the result once.
// The payout path uses this to zero paid entries atomically.
func (l *Ledger) Update(fn func(Book)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	book, err := l.loadLocked()
	if err != nil {
		return err
	}
	fn(book)
	return l.saveLocked(book)
}
