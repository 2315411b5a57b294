package order

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/suiperp/pkg/crypto"
)

// EncodedSize is the fixed length of an encoded order
const EncodedSize = 16*4 + 8 + 32*2 + 1 + len(Tag)

// Tag terminates every encoded order
const Tag = "Bluefin"

var ErrEncoding = errors.New("order encoding failed")

// EncodingError reports a field that cannot be represented in its fixed width
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrEncoding, e.Field, e.Reason)
}

func (e *EncodingError) Unwrap() error { return ErrEncoding }

// Flags is the packed boolean byte of an encoded order
type Flags uint8

const (
	FlagIOC Flags = 1 << iota
	FlagPostOnly
	FlagReduceOnly
	FlagIsBuy
	FlagOrderbookOnly
)

// Order is the signable representation of a perpetual order.
// Price, Quantity and Leverage are 1e18-scaled.
type Order struct {
	Market        string       `json:"market"`
	IsBuy         bool         `json:"isBuy"`
	Price         *uint256.Int `json:"price"`
	Quantity      *uint256.Int `json:"quantity"`
	Leverage      *uint256.Int `json:"leverage"`
	Maker         string       `json:"maker"`
	ReduceOnly    bool         `json:"reduceOnly"`
	PostOnly      bool         `json:"postOnly"`
	OrderbookOnly bool         `json:"orderbookOnly"`
	IOC           bool         `json:"ioc"`
	Expiration    uint64       `json:"expiration"`
	Salt          *uint256.Int `json:"salt"`
}

func (o *Order) Flags() Flags {
	var f Flags
	if o.IOC {
		f |= FlagIOC
	}
	if o.PostOnly {
		f |= FlagPostOnly
	}
	if o.ReduceOnly {
		f |= FlagReduceOnly
	}
	if o.IsBuy {
		f |= FlagIsBuy
	}
	if o.OrderbookOnly {
		f |= FlagOrderbookOnly
	}
	return f
}

// Encode produces the 144-byte canonical buffer:
// price16 | quantity16 | leverage16 | salt16 | expiration8 | maker32 | market32 | flags1 | "Bluefin"
func (o *Order) Encode() ([]byte, error) {
	buf := make([]byte, 0, EncodedSize)
	var err error

	if buf, err = appendUint(buf, "price", o.Price, 16); err != nil {
		return nil, err
	}
	if buf, err = appendUint(buf, "quantity", o.Quantity, 16); err != nil {
		return nil, err
	}
	if buf, err = appendUint(buf, "leverage", o.Leverage, 16); err != nil {
		return nil, err
	}
	if buf, err = appendUint(buf, "salt", o.Salt, 16); err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint64(buf, o.Expiration)
	if buf, err = appendAddress(buf, "maker", o.Maker); err != nil {
		return nil, err
	}
	if buf, err = appendAddress(buf, "market", o.Market); err != nil {
		return nil, err
	}
	buf = append(buf, byte(o.Flags()))
	buf = append(buf, Tag...)
	return buf, nil
}

// Hash is sha256 over the encoded order
func (o *Order) Hash() ([32]byte, error) {
	buf, err := o.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(buf), nil
}

// HashHex renders the order hash as lowercase hex without prefix
func (o *Order) HashHex() (string, error) {
	h, err := o.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// Sign returns hex(sig) + "1" over sha256 of the hex-rendered encoding
func (o *Order) Sign(keys *crypto.KeyMaterial) (string, error) {
	buf, err := o.Encode()
	if err != nil {
		return "", err
	}
	return keys.SignOrder(buf), nil
}

// Verify checks an order signature against the maker public key
func (o *Order) Verify(pub []byte, signature string) bool {
	buf, err := o.Encode()
	if err != nil {
		return false
	}
	return crypto.VerifyOrder(pub, buf, signature)
}

func appendUint(buf []byte, field string, v *uint256.Int, width int) ([]byte, error) {
	if v == nil {
		return nil, &EncodingError{Field: field, Reason: "missing value"}
	}
	if v.BitLen() > width*8 {
		return nil, &EncodingError{Field: field, Reason: fmt.Sprintf("%s exceeds %d bytes", v.Dec(), width)}
	}
	be := v.Bytes32()
	return append(buf, be[32-width:]...), nil
}

func appendAddress(buf []byte, field, addr string) ([]byte, error) {
	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	if h == "" {
		return nil, &EncodingError{Field: field, Reason: "empty address"}
	}
	if len(h)%2 != 0 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, &EncodingError{Field: field, Reason: err.Error()}
	}
	if len(raw) > 32 {
		return nil, &EncodingError{Field: field, Reason: fmt.Sprintf("%d bytes exceeds 32", len(raw))}
	}
	var padded [32]byte
	copy(padded[32-len(raw):], raw)
	return append(buf, padded[:]...), nil
}
