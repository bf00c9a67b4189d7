package prices

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/sipeed/clawvault/pkg/aggregator"
	"github.com/sipeed/clawvault/pkg/tokens"
)

// AggregatorFallback prices a token by quoting one whole unit against USDT
// through the swap aggregator on the configured chain.
type AggregatorFallback struct {
	client   *aggregator.Client
	resolver *tokens.Resolver
	chainID  int64
}

func NewAggregatorFallback(client *aggregator.Client, resolver *tokens.Resolver, chainID int64) *AggregatorFallback {
	return &AggregatorFallback{client: client, resolver: resolver, chainID: chainID}
}

func (f *AggregatorFallback) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	entry, err := f.resolver.Resolve(ctx, symbol, f.chainID)
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(entry.Address, "BINANCE:") {
		return 0, fmt.Errorf("no on-chain listing for %s", symbol)
	}
	usdt, err := f.resolver.Resolve(ctx, "USDT", f.chainID)
	if err != nil {
		return 0, err
	}

	oneUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(entry.Decimals)), nil)
	quote, err := f.client.Quote(ctx, f.chainID, entry.Address, usdt.Address, oneUnit.String(), 0)
	if err != nil {
		return 0, err
	}

	dst, ok := new(big.Float).SetString(quote.DstAmount)
	if !ok {
		return 0, fmt.Errorf("bad quote amount %q", quote.DstAmount)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(usdt.Decimals)), nil))
	price, _ := new(big.Float).Quo(dst, scale).Float64()
	return price, nil
}
