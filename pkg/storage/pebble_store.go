package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleJournal persists journal entries in a Pebble database
type PebbleJournal struct {
	mu sync.Mutex // serializes the exists check with the write
	db *pebble.DB
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	return NewPebbleJournalWithOptions(path, &pebble.Options{})
}

// NewPebbleJournalWithOptions opens the journal with caller options, e.g. an in-memory FS
func NewPebbleJournalWithOptions(path string, opts *pebble.Options) (*PebbleJournal, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

func (s *PebbleJournal) Close() error { return s.db.Close() }

// Record persists an entry. Existing keys are never overwritten.
func (s *PebbleJournal) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	key := entryKey(e.Kind, e.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return fmt.Errorf("%w: %s", ErrEntryExists, key)
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("failed to check entry: %w", err)
	}

	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// Get loads one entry
func (s *PebbleJournal) Get(kind Kind, key string) (*Entry, error) {
	data, closer, err := s.db.Get(entryKey(kind, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &e, nil
}

// List scans all entries of kind in key order, at most limit when limit > 0
func (s *PebbleJournal) List(kind Kind, limit int) ([]Entry, error) {
	prefix := kindPrefix(kind)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %s: %w", iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}
