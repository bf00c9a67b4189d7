package aggregator

// Token is one entry of the aggregator's token list for a chain.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

type tokensResponse struct {
	Tokens map[string]Token `json:"tokens"`
}

// Quote is the aggregator's answer for a src->dst trade of a fixed input.
type Quote struct {
	DstAmount string `json:"dstAmount"`
	Gas       int64  `json:"gas,omitempty"`
}

// TxData is unsigned transaction material returned by the approve/swap
// builders. Value and GasPrice are decimal strings.
type TxData struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      int64  `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
}

type spenderResponse struct {
	Address string `json:"address"`
}

type allowanceResponse struct {
	Allowance string `json:"allowance"`
}

// SwapBuild is the swap builder response: the tx to sign plus the quoted
// destination amount.
type SwapBuild struct {
	DstAmount string `json:"dstAmount"`
	Tx        TxData `json:"tx"`
}

// SwapParams collects inputs for the swap builder endpoint.
type SwapParams struct {
	Src         string
	Dst         string
	AmountWei   string
	From        string
	SlippagePct float64
	FeeBps      int
	Referrer    string
}
