// Package storage defines the key-value persistence abstraction.
package storage

import (
	"errors"
	"time"
)

// ErrNotExist is returned by Get for a key that has never been written.
var ErrNotExist = errors.New("storage: key does not exist")

// Entry describes one stored key.
type Entry struct {
	Key       string    `json:"key"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is a string-keyed blob store.
type Provider interface {
	// Get returns the value for key, or an error wrapping ErrNotExist.
	Get(key string) ([]byte, error)
	// Put atomically replaces the value for key.
	Put(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists every stored key with its content checksum.
	Keys() ([]Entry, error)
}
