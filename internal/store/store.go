package store

import (
	"errors"
	"fmt"
	"os"

	pebble "github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Entry is a single key/value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the persisted client state: settings under fixed keys and the
// last batch of results.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutAll writes every entry in one synced batch.
func (s *Store) PutAll(entries []Entry) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if err := batch.Set([]byte(e.Key), e.Value, nil); err != nil {
			return fmt.Errorf("failed to stage %s: %w", e.Key, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

// Scan returns every entry whose key starts with prefix, in key order.
func (s *Store) Scan(prefix string) ([]Entry, error) {
	iter, err := s.db.NewIter(prefixOptions(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		entries = append(entries, Entry{Key: string(iter.Key()), Value: value})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return entries, nil
}

// ReplacePrefix atomically drops every key under prefix and writes entries.
func (s *Store) ReplacePrefix(prefix string, entries []Entry) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	opts := prefixOptions(prefix)
	if err := batch.DeleteRange(opts.LowerBound, opts.UpperBound, nil); err != nil {
		return fmt.Errorf("failed to clear %s: %w", prefix, err)
	}
	for _, e := range entries {
		if err := batch.Set([]byte(e.Key), e.Value, nil); err != nil {
			return fmt.Errorf("failed to stage %s: %w", e.Key, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

func prefixOptions(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)}
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return []byte{0xff, 0xff, 0xff, 0xff}
}
