package wallet

import "errors"

var (
	// ErrWalletNotFound is returned when no record exists for a user ID
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidPIN is returned when the PIN fails to decrypt the mnemonic
	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrInvalidPINFormat is returned when the PIN is not 4-8 digits
	ErrInvalidPINFormat = errors.New("PIN must be 4-8 digits")

	// ErrInvalidAmount is returned when a swap amount is not a finite positive number
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnsupportedToken is returned when a symbol has no catalog entry
	ErrUnsupportedToken = errors.New("unsupported token symbol")

	// ErrAddressMismatch is returned on import when the mnemonic does not derive the claimed address
	ErrAddressMismatch = errors.New("wallet address does not match mnemonic")

	// ErrInvalidMnemonic is returned when a decrypted phrase is not a valid BIP-39 mnemonic
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)
