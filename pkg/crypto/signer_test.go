package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const (
	testMnemonic   = "lawsuit pony abuse faint call ship attract slender arrange expire despair orbit"
	testPrivateHex = "8c74603faf33291174fa421ffef8a8d0f682ef8adba2d6b1aebdb50de9c396dc"
	testPublicHex  = "32bf85f9ed3a38445dd52ad25c057ff89b3a6167694df7ee9475964af3f504b7"
	testPublicB64  = "Mr+F+e06OERd1SrSXAV/+Js6YWdpTffulHWWSvP1BLc="
	testAddress    = "0x91d2d00d0e6fa27b1bd3b424907be956632602d9027d50059104057870ff7eda"
)

func mustKeys(t *testing.T) *KeyMaterial {
	t.Helper()
	keys, err := FromMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("failed to derive keys: %v", err)
	}
	return keys
}

func TestFromMnemonic(t *testing.T) {
	keys := mustKeys(t)

	if keys.PrivateKeyHex() != testPrivateHex {
		t.Errorf("private key = %s, want %s", keys.PrivateKeyHex(), testPrivateHex)
	}
	if keys.PublicKeyHex() != testPublicHex {
		t.Errorf("public key = %s, want %s", keys.PublicKeyHex(), testPublicHex)
	}
	if keys.PublicKeyBase64() != testPublicB64 {
		t.Errorf("public key b64 = %s, want %s", keys.PublicKeyBase64(), testPublicB64)
	}
	if keys.Address() != testAddress {
		t.Errorf("address = %s, want %s", keys.Address(), testAddress)
	}
}

func TestFromMnemonicNormalizesWhitespace(t *testing.T) {
	keys, err := FromMnemonic("  " + strings.ReplaceAll(testMnemonic, " ", "   ") + "\n")
	if err != nil {
		t.Fatalf("failed to derive keys: %v", err)
	}
	if keys.Address() != testAddress {
		t.Errorf("address = %s, want %s", keys.Address(), testAddress)
	}
}

func TestFromMnemonicInvalid(t *testing.T) {
	_, err := FromMnemonic("lawsuit pony abuse faint call ship attract slender arrange expire despair notaword")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("err = %v, want ErrInvalidMnemonic", err)
	}

	_, err = FromMnemonic("   ")
	if !errors.Is(err, ErrEmptyKeyMaterial) {
		t.Errorf("err = %v, want ErrEmptyKeyMaterial", err)
	}
}

func TestFromPrivateKeyHexRoundTrip(t *testing.T) {
	keys, err := FromPrivateKeyHex("0x" + testPrivateHex)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if keys.Address() != testAddress {
		t.Errorf("address = %s, want %s", keys.Address(), testAddress)
	}

	viaSecret, err := FromSecret(testPrivateHex)
	if err != nil {
		t.Fatalf("failed to load secret: %v", err)
	}
	if viaSecret.Address() != testAddress {
		t.Errorf("address = %s, want %s", viaSecret.Address(), testAddress)
	}
}

func TestNewRejectsUnsupportedScheme(t *testing.T) {
	seed, _ := hex.DecodeString(testPrivateHex)
	if _, err := New(SchemeSecp256k1, seed); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("err = %v, want ErrUnsupportedScheme", err)
	}
	if _, err := New(SchemeED25519, nil); !errors.Is(err, ErrEmptyKeyMaterial) {
		t.Errorf("err = %v, want ErrEmptyKeyMaterial", err)
	}
}

func TestParseDerivationPath(t *testing.T) {
	idx, err := ParseDerivationPath(DefaultDerivationPath)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []uint32{44 | hardenedOffset, 784 | hardenedOffset, hardenedOffset, hardenedOffset, hardenedOffset}
	if len(idx) != len(want) {
		t.Fatalf("len = %d, want %d", len(idx), len(want))
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("idx[%d] = %x, want %x", i, idx[i], want[i])
		}
	}

	if _, err := ParseDerivationPath("m/44'/784'/0'/0/0"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("non-hardened err = %v, want ErrInvalidPath", err)
	}
}

func TestSignTransaction(t *testing.T) {
	keys := mustKeys(t)
	txB64 := "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJw=="

	sig, err := keys.SignTransaction(txB64)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "AJcC4vHz877fLYs6G1md8PzImz/b3nL7NFI7d+lSJ3mRi9T3oSK6ik9ieP06z4AcarnmfpyqhSdsfUeuhXPONwkyv4X57To4RF3VKtJcBX/4mzphZ2lN9+6UdZZK8/UEtw=="
	if sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
	if !VerifyTransaction(txB64, sig, testAddress) {
		t.Error("transaction signature did not verify")
	}
	if VerifyTransaction("AAAA", sig, testAddress) {
		t.Error("signature verified against different tx bytes")
	}
}

func TestSignPersonalMessage(t *testing.T) {
	keys := mustKeys(t)
	msg := []byte("hello bluefin")

	sig, err := keys.SignPersonalMessage(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "AEqOOfJwBMhjYN1t51no/rsdonr3J06w+T99cVIA6YdLztpkoQ0FhRjxwbxxV9c4vQzZp4pEY3vixt/tOmc5+QYyv4X57To4RF3VKtJcBX/4mzphZ2lN9+6UdZZK8/UEtw=="
	if sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
	if !VerifyPersonalMessage(msg, sig, testAddress) {
		t.Error("personal message signature did not verify")
	}

	if _, err := keys.SignPersonalMessage(make([]byte, MaxPersonalMessage+1)); err == nil {
		t.Error("expected error for oversized personal message")
	}
}

func TestVerifySerializedFailsClosed(t *testing.T) {
	keys := mustKeys(t)
	msg := []byte("payload")
	sig := keys.SignSerialized(msg)

	if !VerifySerialized(msg, sig, testAddress) {
		t.Fatal("valid signature rejected")
	}
	if !VerifySerialized(msg, sig, "0x"+strings.ToUpper(testAddress[2:])) {
		t.Error("address comparison should be case-insensitive")
	}

	other, _ := GenerateKey()
	tests := []struct {
		name   string
		sig    []byte
		signer string
	}{
		{"wrong signer", sig, other.Address()},
		{"truncated", sig[:64], testAddress},
		{"empty", nil, testAddress},
		{"bad scheme", append([]byte{0x05}, sig[1:]...), testAddress},
		{"tampered", func() []byte {
			c := append([]byte(nil), sig...)
			c[10] ^= 0xff
			return c
		}(), testAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySerialized(msg, tt.sig, tt.signer) {
				t.Error("verification should fail")
			}
		})
	}
}

func TestParseSerializedSignature(t *testing.T) {
	keys := mustKeys(t)
	raw := keys.SignSerialized([]byte("x"))

	scheme, sig, pub, err := ParseSerializedSignature(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if scheme != SchemeED25519 {
		t.Errorf("scheme = %s, want ED25519", scheme)
	}
	if len(sig) != 64 {
		t.Errorf("sig length = %d, want 64", len(sig))
	}
	if base64.StdEncoding.EncodeToString(pub) != testPublicB64 {
		t.Errorf("public key mismatch")
	}

	raw[0] = byte(SchemeSecp256k1)
	if _, _, _, err := ParseSerializedSignature(raw); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("err = %v, want ErrUnsupportedScheme", err)
	}
}

func TestVerifyHash(t *testing.T) {
	keys := mustKeys(t)
	msg := []byte("digest")
	sig := keys.SignHash(msg, "")

	if len(sig) != 129 || sig[128] != '1' {
		t.Fatalf("signature format = %q", sig)
	}
	if !VerifyHash(keys.PublicKey(), msg, sig+keys.PublicKeyBase64()) {
		t.Error("signature with appended public key should verify")
	}
	if VerifyHash(keys.PublicKey(), []byte("other"), sig) {
		t.Error("signature verified against wrong message")
	}
	if VerifyHash(keys.PublicKey(), msg, sig[:100]) {
		t.Error("truncated signature verified")
	}
}
