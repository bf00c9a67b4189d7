package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sipeed/clawvault/pkg/aggregator"
)

// ErrUnsupportedToken means the symbol does not resolve on the chain.
var ErrUnsupportedToken = errors.New("token not supported on this chain")

// resolvePriority breaks ties when a symbol has several catalog entries:
// the canonical stablecoins and wrapped-native win over lookalikes.
var resolvePriority = []string{"USDT", "USDC", "BUSD", "WBNB"}

// Resolver maps user-facing symbols to catalog entries.
type Resolver struct {
	catalog      *Catalog
	nativeSymbol string
}

func NewResolver(catalog *Catalog, nativeSymbol string) *Resolver {
	return &Resolver{catalog: catalog, nativeSymbol: strings.ToUpper(nativeSymbol)}
}

// Resolve finds the entry for symbol on chainID. The chain's native symbol
// short-circuits to the aggregator's sentinel address with 18 decimals.
func (r *Resolver) Resolve(ctx context.Context, symbol string, chainID int64) (*Entry, error) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if upper == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrUnsupportedToken)
	}
	if upper == r.nativeSymbol {
		return &Entry{
			Symbol:   r.nativeSymbol,
			Name:     r.nativeSymbol,
			Address:  aggregator.NativeTokenAddress,
			Decimals: 18,
		}, nil
	}

	entries, err := r.catalog.Read(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var candidates []Entry
	for _, e := range entries {
		if strings.EqualFold(e.Symbol, upper) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrUnsupportedToken, upper, chainID)
	}
	if len(candidates) == 1 {
		return &candidates[0], nil
	}

	// Several listings share the symbol; prefer the exact-case canonical one
	// when the symbol is on the priority list, else take the first.
	for _, want := range resolvePriority {
		if want != upper {
			continue
		}
		for i := range candidates {
			if candidates[i].Symbol == want {
				return &candidates[i], nil
			}
		}
	}
	return &candidates[0], nil
}
