package keystore

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned when no key is stored under the requested number and version.
var ErrKeyNotFound = errors.New("keystore: key not found")

type slot struct {
	number  uint16
	version uint16
}

// Store is an in-memory key table. It is not safe for concurrent writers.
type Store struct {
	keys map[slot]Key
}

// New returns an empty Store.
func New() *Store {
	return &Store{keys: make(map[slot]Key)}
}

// Set stores a copy of k under (number, version), replacing any previous entry.
func (s *Store) Set(number, version uint16, k Key) error {
	if err := k.Validate(); err != nil {
		return fmt.Errorf("key %d/%d: %w", number, version, err)
	}
	v := make([]byte, len(k.Value))
	copy(v, k.Value)
	s.keys[slot{number, version}] = Key{Type: k.Type, Value: v}
	return nil
}

// GetKey returns a copy of the key stored under (number, version).
func (s *Store) GetKey(number, version uint16) (Key, error) {
	k, ok := s.keys[slot{number, version}]
	if !ok {
		return Key{}, fmt.Errorf("%w: number %d version %d", ErrKeyNotFound, number, version)
	}
	v := make([]byte, len(k.Value))
	copy(v, k.Value)
	return Key{Type: k.Type, Value: v}, nil
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	return len(s.keys)
}
