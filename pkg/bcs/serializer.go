package bcs

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOutOfRange     = errors.New("bcs: value out of range")
	ErrInvalidAddress = errors.New("bcs: invalid address")
)

// MaxShortString is the longest string accepted by the single-byte length prefix
const MaxShortString = 255

// Serializer appends Binary Canonical Serialization values to an in-memory buffer
type Serializer struct {
	buf bytes.Buffer
}

func NewSerializer() *Serializer {
	return &Serializer{}
}

// Bytes returns the serialized output
func (s *Serializer) Bytes() []byte {
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

func (s *Serializer) Len() int { return s.buf.Len() }

func (s *Serializer) Bool(v bool) {
	if v {
		s.buf.WriteByte(1)
		return
	}
	s.buf.WriteByte(0)
}

func (s *Serializer) U8(v uint8) { s.buf.WriteByte(v) }

func (s *Serializer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.buf.Write(b[:])
}

func (s *Serializer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf.Write(b[:])
}

func (s *Serializer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf.Write(b[:])
}

// U128 writes v as 16 little-endian bytes, rejecting values wider than 128 bits
func (s *Serializer) U128(v *uint256.Int) error {
	if v == nil {
		return fmt.Errorf("%w: nil u128", ErrOutOfRange)
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("%w: %s does not fit in u128", ErrOutOfRange, v.Dec())
	}
	be := v.Bytes32()
	for i := 31; i >= 16; i-- {
		s.buf.WriteByte(be[i])
	}
	return nil
}

// ULEB128 writes an unsigned LEB128 varint
func (s *Serializer) ULEB128(v uint64) {
	s.buf.Write(AppendULEB128(nil, v))
}

// FixedBytes writes b without a length prefix
func (s *Serializer) FixedBytes(b []byte) { s.buf.Write(b) }

// LenBytes writes a u32 length followed by b
func (s *Serializer) LenBytes(b []byte) error {
	if uint64(len(b)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: byte slice of %d", ErrOutOfRange, len(b))
	}
	s.U32(uint32(len(b)))
	s.buf.Write(b)
	return nil
}

// Vector writes a ULEB128 length followed by the raw bytes
func (s *Serializer) Vector(b []byte) {
	s.ULEB128(uint64(len(b)))
	s.buf.Write(b)
}

// Str writes a UTF-8 string with a single length byte
func (s *Serializer) Str(v string) error {
	if len(v) > MaxShortString {
		return fmt.Errorf("%w: string of %d bytes exceeds %d", ErrOutOfRange, len(v), MaxShortString)
	}
	s.buf.WriteByte(byte(len(v)))
	s.buf.WriteString(v)
	return nil
}

// Address writes the raw bytes of a 16 or 32 byte hex address
func (s *Serializer) Address(addr string) error {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	s.buf.Write(raw)
	return nil
}

// DecodeAddress parses a hex address with optional 0x prefix into 16 or 32 raw bytes
func DecodeAddress(addr string) ([]byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(h)%2 != 0 {
		return nil, fmt.Errorf("%w: odd hex length in %q", ErrInvalidAddress, addr)
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 16 && len(raw) != 32 {
		return nil, fmt.Errorf("%w: %d bytes, want 16 or 32", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// AppendULEB128 appends the LEB128 encoding of v to dst
func AppendULEB128(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
