package wallet

// TokenBalance is one cached balance row on a wallet record. Balance stays a
// decimal string so wei-scale values never go through a float.
type TokenBalance struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name,omitempty"`
	Balance  string  `json:"balance"`
	Decimals int     `json:"decimals,omitempty"`
	PriceUsd float64 `json:"priceUsd,omitempty"`
	LogoUrl  string  `json:"logoUrl,omitempty"`
}

// Record is the persisted wallet file for one user ID.
type Record struct {
	UserID            string         `json:"userId"`
	WalletAddress     string         `json:"walletAddress"`
	EncryptedMnemonic string         `json:"encryptedMnemonic"`
	Tokens            []TokenBalance `json:"tokens"`
	TotalUsd          float64        `json:"totalUsd,omitempty"`
	CreatedAt         string         `json:"createdAt"`
	UpdatedAt         string         `json:"updatedAt"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// TotalUsdValue recomputes the USD total from the cached token rows. Unknown
// prices count as zero.
func (r *Record) TotalUsdValue() float64 {
	total := 0.0
	for _, t := range r.Tokens {
		total += parseBalance(t.Balance) * t.PriceUsd
	}
	return total
}
