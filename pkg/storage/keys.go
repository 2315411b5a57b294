package storage

import (
	"fmt"
)

// Journal key schema for Pebble storage:
//
//   ord:<orderHash>   → signed order
//   cxl:<cancelHash>  → signed cancellation
//   tx:<digest>       → executed transaction
//   lev:<symbol>:<ms> → leverage adjustment
//
// Each kind owns one prefix, so a prefix scan lists all entries of a kind.

// Kind names the category of a journal entry. Its value is the key prefix.
type Kind string

const (
	KindOrder       Kind = "ord"
	KindCancel      Kind = "cxl"
	KindTransaction Kind = "tx"
	KindLeverage    Kind = "lev"
)

// ParseKind maps a prefix such as "ord" back to its Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOrder, KindCancel, KindTransaction, KindLeverage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown journal kind %q", s)
	}
}

// entryKey returns the key for an entry
// Format: "{kind}:{key}"
func entryKey(kind Kind, key string) []byte {
	return []byte(fmt.Sprintf("%s:%s", kind, key))
}

// kindPrefix returns the prefix for all entries of a kind
// Format: "{kind}:"
func kindPrefix(kind Kind) []byte {
	return []byte(fmt.Sprintf("%s:", kind))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
