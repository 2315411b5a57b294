package crypto

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/uhyunpark/suiperp/pkg/bcs"
)

// Intent prefixes scope a digest to one message domain
var (
	IntentTransaction     = [3]byte{0, 0, 0}
	IntentPersonalMessage = [3]byte{3, 0, 0}
)

// MaxPersonalMessage bounds the personal message length
const MaxPersonalMessage = 255

// TransactionDigest is blake2b-256(intent || txBytes)
func TransactionDigest(txBytes []byte) [32]byte {
	return intentDigest(IntentTransaction, txBytes)
}

// MessageDigest is blake2b-256([3,0,0] || uleb128(len) || msg)
func MessageDigest(msg []byte) [32]byte {
	framed := bcs.AppendULEB128(make([]byte, 0, len(msg)+3), uint64(len(msg)))
	framed = append(framed, msg...)
	return intentDigest(IntentPersonalMessage, framed)
}

// PersonalMessageDigest is MessageDigest restricted to MaxPersonalMessage bytes
func PersonalMessageDigest(msg []byte) ([32]byte, error) {
	if len(msg) > MaxPersonalMessage {
		return [32]byte{}, fmt.Errorf("personal message of %d bytes exceeds %d", len(msg), MaxPersonalMessage)
	}
	return MessageDigest(msg), nil
}

func intentDigest(intent [3]byte, payload []byte) [32]byte {
	buf := make([]byte, 0, len(intent)+len(payload))
	buf = append(buf, intent[:]...)
	buf = append(buf, payload...)
	return blake2b.Sum256(buf)
}
