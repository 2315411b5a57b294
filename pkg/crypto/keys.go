package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported signature scheme")
	ErrEmptyKeyMaterial  = errors.New("empty key material")
	ErrInvalidMnemonic   = errors.New("invalid mnemonic")
	ErrInvalidPath       = errors.New("invalid derivation path")
)

// Scheme is the signature scheme flag that prefixes serialized signatures and address preimages
type Scheme uint8

const (
	SchemeED25519   Scheme = 0x00
	SchemeSecp256k1 Scheme = 0x01
)

func (s Scheme) String() string {
	switch s {
	case SchemeED25519:
		return "ED25519"
	case SchemeSecp256k1:
		return "Secp256k1"
	default:
		return "Scheme(" + strconv.Itoa(int(s)) + ")"
	}
}

// DefaultDerivationPath is the Sui Ed25519 account path
const DefaultDerivationPath = "m/44'/784'/0'/0'/0'"

const hardenedOffset uint32 = 0x80000000

// KeyMaterial holds an Ed25519 key pair and its derived chain address.
// It is immutable after construction and safe to share between goroutines.
type KeyMaterial struct {
	scheme  Scheme
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	address string
}

// New builds key material from a 32-byte private key seed
func New(scheme Scheme, seed []byte) (*KeyMaterial, error) {
	if scheme != SchemeED25519 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if len(seed) == 0 {
		return nil, ErrEmptyKeyMaterial
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to derive ed25519 public key")
	}

	return &KeyMaterial{
		scheme:  scheme,
		private: priv,
		public:  pub,
		address: DeriveAddress(scheme, pub),
	}, nil
}

// GenerateKey creates random Ed25519 key material
func GenerateKey() (*KeyMaterial, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return New(SchemeED25519, seed)
}

// FromPrivateKeyHex loads key material from a hex-encoded 32-byte seed ("0x" optional)
func FromPrivateKeyHex(hexKey string) (*KeyMaterial, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrEmptyKeyMaterial
	}
	seed, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return New(SchemeED25519, seed)
}

// FromMnemonic derives key material from a BIP-39 phrase on the default path
func FromMnemonic(phrase string) (*KeyMaterial, error) {
	return FromMnemonicPath(phrase, DefaultDerivationPath)
}

// FromMnemonicPath derives key material from a BIP-39 phrase on a hardened SLIP-10 path
func FromMnemonicPath(phrase, path string) (*KeyMaterial, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if phrase == "" {
		return nil, ErrEmptyKeyMaterial
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	indices, err := ParseDerivationPath(path)
	if err != nil {
		return nil, err
	}
	return New(SchemeED25519, deriveSLIP10(seed, indices))
}

// FromSecret accepts either a mnemonic phrase or a hex private key
func FromSecret(secret string) (*KeyMaterial, error) {
	secret = strings.TrimSpace(secret)
	if strings.Contains(secret, " ") {
		return FromMnemonic(secret)
	}
	return FromPrivateKeyHex(secret)
}

// ParseDerivationPath parses "m/44'/784'/0'/0'/0'" into hardened indices.
// Ed25519 only supports hardened derivation.
func ParseDerivationPath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if !strings.HasSuffix(p, "'") {
			return nil, fmt.Errorf("%w: segment %q is not hardened", ErrInvalidPath, p)
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(p, "'"), 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrInvalidPath, p, err)
		}
		out = append(out, uint32(n)|hardenedOffset)
	}
	return out, nil
}

func deriveSLIP10(seed []byte, path []uint32) []byte {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chain := sum[:32], sum[32:]

	for _, idx := range path {
		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, idx)

		mac = hmac.New(sha512.New, chain)
		mac.Write(data)
		sum = mac.Sum(nil)
		key, chain = sum[:32], sum[32:]
	}
	return key
}

// DeriveAddress returns 0x + hex(blake2b-256(flag || publicKey))
func DeriveAddress(scheme Scheme, pub []byte) string {
	pre := make([]byte, 0, 1+len(pub))
	pre = append(pre, byte(scheme))
	pre = append(pre, pub...)
	sum := blake2b.Sum256(pre)
	return "0x" + hex.EncodeToString(sum[:])
}

func (k *KeyMaterial) Scheme() Scheme { return k.scheme }

// Address returns the lowercase 0x-prefixed chain address
func (k *KeyMaterial) Address() string { return k.address }

// PublicKey returns a copy of the 32-byte public key
func (k *KeyMaterial) PublicKey() []byte {
	out := make([]byte, len(k.public))
	copy(out, k.public)
	return out
}

func (k *KeyMaterial) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.public)
}

func (k *KeyMaterial) PublicKeyHex() string {
	return hex.EncodeToString(k.public)
}

// PrivateKeyHex returns the 32-byte seed as hex (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (k *KeyMaterial) PrivateKeyHex() string {
	return hex.EncodeToString(k.private.Seed())
}
