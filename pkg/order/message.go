package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/uhyunpark/suiperp/pkg/crypto"
)

var ErrEmptyCancellation = errors.New("cancellation needs at least one order hash")

type cancellationPayload struct {
	OrderHashes []string `json:"orderHashes"`
}

type onboardingPayload struct {
	OnboardingURL string `json:"onboardingUrl"`
}

// EncodeCancellation returns the 32-byte message signed to cancel hashes, in the given order
func EncodeCancellation(hashes []string) ([32]byte, error) {
	if len(hashes) == 0 {
		return [32]byte{}, ErrEmptyCancellation
	}
	msg, err := compactJSON(cancellationPayload{OrderHashes: hashes})
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.MessageDigest(msg), nil
}

// SignCancellation signs the cancellation message in the order signature format
func SignCancellation(keys *crypto.KeyMaterial, hashes []string) (string, error) {
	digest, err := EncodeCancellation(hashes)
	if err != nil {
		return "", err
	}
	return keys.SignHash(digest[:], ""), nil
}

// EncodeOnboarding returns blake2b-256([3,0,0,len] || {"onboardingUrl":url}).
// The length is a single byte, so messages over 255 bytes are rejected.
func EncodeOnboarding(url string) ([32]byte, error) {
	msg, err := compactJSON(onboardingPayload{OnboardingURL: url})
	if err != nil {
		return [32]byte{}, err
	}
	if len(msg) > 255 {
		return [32]byte{}, &EncodingError{Field: "onboardingUrl", Reason: fmt.Sprintf("message of %d bytes exceeds 255", len(msg))}
	}
	buf := make([]byte, 0, 4+len(msg))
	buf = append(buf, crypto.IntentPersonalMessage[:]...)
	buf = append(buf, byte(len(msg)))
	buf = append(buf, msg...)
	return blake2b.Sum256(buf), nil
}

// SignOnboarding signs the onboarding message for url
func SignOnboarding(keys *crypto.KeyMaterial, url string) (string, error) {
	digest, err := EncodeOnboarding(url)
	if err != nil {
		return "", err
	}
	return keys.SignHash(digest[:], ""), nil
}

// compactJSON marshals without whitespace or HTML escaping
func compactJSON(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
