package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrEntryExists   = errors.New("journal entry already exists")
	ErrEntryNotFound = errors.New("journal entry not found")
)

// Entry is one append-only record of a signed payload or executed transaction
type Entry struct {
	Kind      Kind            `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

// NewEntry marshals payload into an entry stamped with now
func NewEntry(kind Kind, key string, payload any, now time.Time) (Entry, error) {
	if key == "" {
		return Entry{}, fmt.Errorf("journal %s entry needs a key", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Entry{Kind: kind, Key: key, Payload: data, Timestamp: now.UnixMilli()}, nil
}

// Journal records what a client signed and executed.
// Record never overwrites: a second entry for the same kind and key returns ErrEntryExists.
type Journal interface {
	Record(e Entry) error
	Get(kind Kind, key string) (*Entry, error)
	List(kind Kind, limit int) ([]Entry, error)
	Close() error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal                    { return &NopJournal{} }
func (NopJournal) Record(Entry) error               { return nil }
func (NopJournal) Get(Kind, string) (*Entry, error) { return nil, ErrEntryNotFound }
func (NopJournal) List(Kind, int) ([]Entry, error)  { return nil, nil }
func (NopJournal) Close() error                     { return nil }

// MemJournal keeps entries in memory
type MemJournal struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemJournal() *MemJournal {
	return &MemJournal{entries: make(map[string]Entry)}
}

func (j *MemJournal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := string(entryKey(e.Kind, e.Key))
	if _, ok := j.entries[k]; ok {
		return fmt.Errorf("%w: %s", ErrEntryExists, k)
	}
	j.entries[k] = e
	return nil
}

func (j *MemJournal) Get(kind Kind, key string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[string(entryKey(kind, key))]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

// List returns entries of kind in key order, at most limit when limit > 0
func (j *MemJournal) List(kind Kind, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *MemJournal) Close() error { return nil }

var (
	_ Journal = (*NopJournal)(nil)
	_ Journal = (*MemJournal)(nil)
	_ Journal = (*PebbleJournal)(nil)
)
