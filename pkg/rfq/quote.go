package rfq

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/suiperp/pkg/bcs"
	"github.com/uhyunpark/suiperp/pkg/crypto"
)

// DefaultQuoteTTL is added to the creation time when no expiry is given
const DefaultQuoteTTL = 30 * time.Second

var ErrInvalidQuote = errors.New("invalid quote")

// Quote is a vault maker's signed offer to swap TokenIn for TokenOut with Taker
type Quote struct {
	Vault          string `json:"vault"`
	ID             string `json:"id"`
	Taker          string `json:"taker"`
	TokenInAmount  uint64 `json:"tokenInAmount"`
	TokenOutAmount uint64 `json:"tokenOutAmount"`
	TokenInType    string `json:"tokenInType"`
	TokenOutType   string `json:"tokenOutType"`
	CreatedAt      uint64 `json:"createdAt"`
	ExpiresAt      uint64 `json:"expiresAt"`
}

// QuoteParams are the caller-supplied quote fields. Zero CreatedAt and ExpiresAt take defaults.
type QuoteParams struct {
	Vault          string
	ID             string
	Taker          string
	TokenInAmount  uint64
	TokenOutAmount uint64
	TokenInType    string
	TokenOutType   string
	CreatedAt      uint64
	ExpiresAt      uint64
}

// NewQuoteID returns a fresh random quote id
func NewQuoteID() string {
	return uuid.NewString()
}

// NewQuote fills defaults from now and validates the result
func NewQuote(p QuoteParams, now time.Time) (*Quote, error) {
	q := &Quote{
		Vault:          p.Vault,
		ID:             p.ID,
		Taker:          p.Taker,
		TokenInAmount:  p.TokenInAmount,
		TokenOutAmount: p.TokenOutAmount,
		TokenInType:    p.TokenInType,
		TokenOutType:   p.TokenOutType,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
	}
	if q.ID == "" {
		q.ID = NewQuoteID()
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = uint64(now.UnixMilli())
	}
	if q.ExpiresAt == 0 {
		q.ExpiresAt = q.CreatedAt + uint64(DefaultQuoteTTL.Milliseconds())
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Quote) Validate() error {
	if q.Vault == "" || q.Taker == "" {
		return fmt.Errorf("%w: vault and taker are required", ErrInvalidQuote)
	}
	if q.TokenInType == "" || q.TokenOutType == "" {
		return fmt.Errorf("%w: token types are required", ErrInvalidQuote)
	}
	if q.ExpiresAt <= q.CreatedAt {
		return fmt.Errorf("%w: expiry %d not after creation %d", ErrInvalidQuote, q.ExpiresAt, q.CreatedAt)
	}
	return nil
}

// Encode serializes the quote in the field order the on-chain verifier reads
func (q *Quote) Encode() ([]byte, error) {
	s := bcs.NewSerializer()
	if err := s.Address(q.Vault); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	if err := s.Str(q.ID); err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if err := s.Address(q.Taker); err != nil {
		return nil, fmt.Errorf("taker: %w", err)
	}
	s.U64(q.TokenInAmount)
	s.U64(q.TokenOutAmount)
	if err := s.Str(q.TokenInType); err != nil {
		return nil, fmt.Errorf("token in type: %w", err)
	}
	if err := s.Str(q.TokenOutType); err != nil {
		return nil, fmt.Errorf("token out type: %w", err)
	}
	s.U64(q.ExpiresAt)
	s.U64(q.CreatedAt)
	return s.Bytes(), nil
}

// Sign validates the quote and returns flag || signature || public key over its encoding
func (q *Quote) Sign(keys *crypto.KeyMaterial) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	encoded, err := q.Encode()
	if err != nil {
		return nil, err
	}
	return keys.SignSerialized(encoded), nil
}

// SignBase64 is Sign rendered as base64, the form takers submit on chain
func (q *Quote) SignBase64(keys *crypto.KeyMaterial) (string, error) {
	sig, err := q.Sign(keys)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature reports whether the hex serialized signature signs this quote and belongs to signer.
// Malformed input verifies false.
func (q *Quote) VerifySignature(signatureHex, signer string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	encoded, err := q.Encode()
	if err != nil {
		return false
	}
	return crypto.VerifySerialized(encoded, sig, signer)
}
