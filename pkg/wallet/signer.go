package wallet

import (
	"crypto/ecdsa"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	bip39 "github.com/tyler-smith/go-bip39"
)

// m/44'/60'/0'/0/0, the default EVM account path.
var derivationPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// NormalizeMnemonic collapses whitespace so phrases pasted with odd spacing
// still validate.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(phrase), " ")
}

// DeriveKey turns a BIP-39 mnemonic into the wallet's signing key and address.
func DeriveKey(mnemonic string) (*ecdsa.PrivateKey, common.Address, error) {
	phrase := NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, common.Address{}, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(phrase, "")
	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, common.Address{}, err
	}
	for _, step := range derivationPath {
		node, err = node.Derive(step)
		if err != nil {
			return nil, common.Address{}, err
		}
	}

	btcKey, err := node.ECPrivKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	key := btcKey.ToECDSA()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return key, addr, nil
}

// VerifyAddress checks that mnemonic derives the claimed address,
// case-insensitively.
func VerifyAddress(mnemonic, claimed string) error {
	_, addr, err := DeriveKey(mnemonic)
	if err != nil {
		return err
	}
	if !strings.EqualFold(addr.Hex(), strings.TrimSpace(claimed)) {
		return ErrAddressMismatch
	}
	return nil
}
