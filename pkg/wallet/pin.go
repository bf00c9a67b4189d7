package wallet

// ValidatePIN checks if PIN is 4 to 8 digits
func ValidatePIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
