// Package kv provides a small key-value store with hierarchical keys, backed
// by BadgerDB in production and a sorted map in tests.
//
// Keys are string segments joined with ':' (Key{"recordings", "000123", "id"}
// is stored as "recordings:000123:id"). Segments must not contain ':'.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// ErrInvalidKey is returned for empty keys or segments containing the separator.
var ErrInvalidKey = errors.New("kv: invalid key")

// Separator joins key segments in the encoded form.
const Separator = ":"

// Key is a hierarchical path of string segments.
type Key []string

func (k Key) String() string {
	return strings.Join(k, Separator)
}

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// ListOptions controls List iteration.
type ListOptions struct {
	// Reverse iterates from the largest key down.
	Reverse bool
	// Limit stops after this many entries; zero means no limit.
	Limit int
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns ErrNotFound if the key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	Set(ctx context.Context, key Key, value []byte) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key Key) error

	// List yields entries whose key starts with prefix, ordered by encoded key.
	List(ctx context.Context, prefix Key, opts ListOptions) iter.Seq2[Entry, error]

	Close() error
}

func encode(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, seg := range k {
		if seg == "" || strings.Contains(seg, Separator) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return []byte(k.String()), nil
}

// encodePrefix returns the byte prefix matching keys below p. An empty p
// matches everything. The trailing separator keeps "a:b" from matching "a:bc".
func encodePrefix(p Key) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := encode(p)
	if err != nil {
		return nil, err
	}
	return append(b, Separator...), nil
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), Separator))
}

func errSeq(err error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		yield(Entry{}, err)
	}
}
