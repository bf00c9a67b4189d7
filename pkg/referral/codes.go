package referral

import "strings"

// ResolveCode turns a referral code into a payout wallet using the
// configured code map. A raw wallet address passes through unchanged;
// anything else resolves to empty.
func ResolveCode(code string, codeMap map[string]string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}
	if wallet, ok := codeMap[trimmed]; ok && walletPattern.MatchString(wallet) {
		return wallet
	}
	if wallet, ok := codeMap[strings.ToLower(trimmed)]; ok && walletPattern.MatchString(wallet) {
		return wallet
	}
	if walletPattern.MatchString(trimmed) {
		return trimmed
	}
	return ""
}
