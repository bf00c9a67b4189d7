package cryptobox

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	mnemonics := []string{
		"legal winner thank year wave sausage worth useful legal winner thank yellow",
		"zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong",
		"",
	}
	for _, m := range mnemonics {
		blob, err := Encrypt(m, "1234")
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := Decrypt(blob, "1234")
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != m {
			t.Errorf("round trip = %q, want %q", got, m)
		}
	}
}

func TestDecrypt_WrongPIN(t *testing.T) {
	blob, err := Encrypt("test mnemonic phrase", "1234")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decrypt(blob, "9999")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Decrypt wrong pin err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestEncrypt_FreshSaltAndIV(t *testing.T) {
	a, err := Encrypt("same input", "1234")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input", "1234")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same input produced identical blobs")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	blob, err := Encrypt("tamper target", "1234")
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := base64.StdEncoding.DecodeString(blob)
	var p map[string]any
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	ct, _ := base64.StdEncoding.DecodeString(p["ciphertext"].(string))
	ct[0] ^= 0xff
	p["ciphertext"] = base64.StdEncoding.EncodeToString(ct)
	mutated, _ := json.Marshal(p)

	_, err = Decrypt(base64.StdEncoding.EncodeToString(mutated), "1234")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("tampered decrypt err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestDecrypt_MalformedBlob(t *testing.T) {
	cases := []string{
		"not base64 at all!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"alg":"PBKDF2-AES-GCM"}`)),
	}
	for _, blob := range cases {
		if _, err := Decrypt(blob, "1234"); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("Decrypt(%q) err = %v, want ErrAuthenticationFailed", blob, err)
		}
	}
}
