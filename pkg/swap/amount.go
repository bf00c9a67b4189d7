// ClawVault - custodial EVM wallet backend
// Package swap turns a user's symbol-level swap request into an aggregator
// trade: amount validation, PIN unlock, token resolution, approval, quote
// and submission, with referral fee credits accrued along the way.
package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/sipeed/clawvault/pkg/wallet"
)

// ToWei converts a positive whole-token decimal string to wei. Extra
// fractional digits beyond the token's precision are truncated.
func ToWei(amount string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: %q", wallet.ErrInvalidAmount, amount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: %q", wallet.ErrInvalidAmount, amount)
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	for len(frac) < decimals {
		frac += "0"
	}

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", wallet.ErrInvalidAmount, amount)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", wallet.ErrInvalidAmount)
	}
	return wei, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreditShare computes the referrer's cut of an integrator fee, floored.
func CreditShare(feeWei *big.Int, shareBps int) *big.Int {
	if feeWei == nil || feeWei.Sign() <= 0 || shareBps <= 0 {
		return big.NewInt(0)
	}
	credit := new(big.Int).Mul(feeWei, big.NewInt(int64(shareBps)))
	return credit.Div(credit, big.NewInt(10000))
}
