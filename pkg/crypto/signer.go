package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
)

// SerializedSignatureSize is flag(1) || signature(64) || publicKey(32)
const SerializedSignatureSize = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

// Sign signs msg with the Ed25519 private key and returns the 64-byte signature
func (k *KeyMaterial) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// SignHash signs msg and renders the exchange format: hex(signature) + "1" + suffix
func (k *KeyMaterial) SignHash(msg []byte, suffix string) string {
	return hex.EncodeToString(k.Sign(msg)) + "1" + suffix
}

// OrderDigest is sha256 over the lowercase hex text of the encoded order
func OrderDigest(encoded []byte) [32]byte {
	return sha256.Sum256([]byte(hex.EncodeToString(encoded)))
}

// SignOrder signs an encoded order buffer in the exchange format
func (k *KeyMaterial) SignOrder(encoded []byte) string {
	digest := OrderDigest(encoded)
	return k.SignHash(digest[:], "")
}

// SignSerialized signs msg directly and frames it as flag || sig || pk
func (k *KeyMaterial) SignSerialized(msg []byte) []byte {
	return k.serialize(k.Sign(msg))
}

// SignTransaction signs base64 transaction bytes under the transaction intent.
// Returns base64(flag || sig || pk) as expected by sui_executeTransactionBlock.
func (k *KeyMaterial) SignTransaction(txBytesB64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode tx bytes: %w", err)
	}
	digest := TransactionDigest(txBytes)
	return base64.StdEncoding.EncodeToString(k.SignSerialized(digest[:])), nil
}

// SignPersonalMessage signs msg under the personal message intent
func (k *KeyMaterial) SignPersonalMessage(msg []byte) (string, error) {
	digest, err := PersonalMessageDigest(msg)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k.SignSerialized(digest[:])), nil
}

func (k *KeyMaterial) serialize(sig []byte) []byte {
	out := make([]byte, 0, SerializedSignatureSize)
	out = append(out, byte(k.scheme))
	out = append(out, sig...)
	out = append(out, k.public...)
	return out
}

// ParseSerializedSignature splits flag || sig || pk
func ParseSerializedSignature(serialized []byte) (Scheme, []byte, []byte, error) {
	if len(serialized) != SerializedSignatureSize {
		return 0, nil, nil, fmt.Errorf("invalid serialized signature length: %d", len(serialized))
	}
	scheme := Scheme(serialized[0])
	if scheme != SchemeED25519 {
		return 0, nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	sig := serialized[1 : 1+ed25519.SignatureSize]
	pub := serialized[1+ed25519.SignatureSize:]
	return scheme, sig, pub, nil
}

// VerifySerialized checks that serialized signs msg and that its public key belongs to signer.
// Returns false on any malformed input.
func VerifySerialized(msg, serialized []byte, signer string) bool {
	scheme, sig, pub, err := ParseSerializedSignature(serialized)
	if err != nil {
		return false
	}
	if !strings.EqualFold(DeriveAddress(scheme, pub), signer) {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// VerifyTransaction verifies a base64 transaction signature over base64 tx bytes
func VerifyTransaction(txBytesB64, signatureB64, signer string) bool {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return false
	}
	serialized, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	digest := TransactionDigest(txBytes)
	return VerifySerialized(digest[:], serialized, signer)
}

// VerifyPersonalMessage verifies a base64 personal message signature
func VerifyPersonalMessage(msg []byte, signatureB64, signer string) bool {
	digest, err := PersonalMessageDigest(msg)
	if err != nil {
		return false
	}
	serialized, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	return VerifySerialized(digest[:], serialized, signer)
}

// VerifyHash verifies an exchange-format signature (hex sig + "1" + suffix) over msg
func VerifyHash(pub, msg []byte, signature string) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) < 2*ed25519.SignatureSize+1 {
		return false
	}
	if signature[2*ed25519.SignatureSize] != '1' {
		return false
	}
	sig, err := hex.DecodeString(signature[:2*ed25519.SignatureSize])
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// VerifyOrder verifies an order signature against the encoded order and maker public key
func VerifyOrder(pub, encoded []byte, signature string) bool {
	digest := OrderDigest(encoded)
	return VerifyHash(pub, digest[:], signature)
}
