// Package cryptobox seals wallet mnemonics under a user PIN. The key is
// derived with PBKDF2-HMAC-SHA256 and the mnemonic is encrypted with
// AES-256-GCM, so a wrong PIN fails the GCM tag check instead of yielding
// garbage. That tag check is the only PIN verification the system has.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algTag     = "PBKDF2-AES-GCM"
	kdfTag     = "PBKDF2"
	hashTag    = "SHA-256"
	iterations = 100000
	saltLen    = 16
	ivLen      = 12
	keyLen     = 32
)

// ErrAuthenticationFailed is returned when the PIN is wrong or the payload
// has been tampered with. Callers treat it as "invalid PIN".
var ErrAuthenticationFailed = errors.New("authentication failed")

type payload struct {
	Alg        string `json:"alg"`
	Kdf        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Hash       string `json:"hash"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

func deriveKey(pin string, salt []byte, iters int) []byte {
	return pbkdf2.Key([]byte(pin), salt, iters, keyLen, sha256.New)
}

// Encrypt seals mnemonic under pin. The result is the base64 encoding of the
// JSON payload, matching the format the web client produces.
func Encrypt(mnemonic, pin string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(pin, salt, iterations))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, iv, []byte(mnemonic), nil)

	p := payload{
		Alg:        algTag,
		Kdf:        kdfTag,
		Iterations: iterations,
		Hash:       hashTag,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed field, wrong PIN or
// modified ciphertext yields ErrAuthenticationFailed.
func Decrypt(blob, pin string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", ErrAuthenticationFailed
	}

	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil || len(salt) == 0 {
		return "", ErrAuthenticationFailed
	}
	iv, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil || len(iv) != ivLen {
		return "", ErrAuthenticationFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	iters := p.Iterations
	if iters <= 0 {
		iters = iterations
	}

	block, err := aes.NewCipher(deriveKey(pin, salt, iters))
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}
