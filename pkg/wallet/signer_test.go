package wallet

import (
	"errors"
	"testing"
)

// Standard development mnemonic; first account at m/44'/60'/0'/0/0.
const (
	testMnemonic = "test test test test test test test test test test test junk"
	testAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestDeriveKey_KnownVector(t *testing.T) {
	key, addr, err := DeriveKey(testMnemonic)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if key == nil {
		t.Fatal("nil key")
	}
	if addr.Hex() != testAddress {
		t.Errorf("address = %s, want %s", addr.Hex(), testAddress)
	}
}

func TestDeriveKey_NormalizesWhitespace(t *testing.T) {
	messy := "  test test\ttest test test test\n test test test test test junk "
	_, addr, err := DeriveKey(messy)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if addr.Hex() != testAddress {
		t.Errorf("address = %s, want %s", addr.Hex(), testAddress)
	}
}

func TestDeriveKey_InvalidMnemonic(t *testing.T) {
	_, _, err := DeriveKey("definitely not a bip39 phrase")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("err = %v, want ErrInvalidMnemonic", err)
	}
}

func TestVerifyAddress(t *testing.T) {
	if err := VerifyAddress(testMnemonic, testAddress); err != nil {
		t.Errorf("VerifyAddress exact = %v", err)
	}
	// case-insensitive match
	if err := VerifyAddress(testMnemonic, "0XF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"); err != nil {
		t.Errorf("VerifyAddress upper = %v", err)
	}
	err := VerifyAddress(testMnemonic, "0x0000000000000000000000000000000000000001")
	if !errors.Is(err, ErrAddressMismatch) {
		t.Errorf("VerifyAddress mismatch err = %v, want ErrAddressMismatch", err)
	}
}
