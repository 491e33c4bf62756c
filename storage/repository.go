// Package storage provides the key/value abstraction used for onboarding
// state, account records and contact messages.
package storage

import "errors"

// ErrNotFound is returned when a key does not exist in a namespace.
var ErrNotFound = errors.New("record not found")

// UpdateFunc receives the current value (nil when the key is absent) and
// returns the value to store. Returning an error aborts the update.
type UpdateFunc func(current []byte) ([]byte, error)

// Repository stores opaque values under (namespace, key).
type Repository interface {
	Put(namespace string, key string, value []byte) error
	Get(namespace string, key string) ([]byte, error)
	Delete(namespace string, key string) error
	List(namespace string) ([]string, error)
	// Update performs an atomic read-modify-write of a single key.
	Update(namespace string, key string, fn UpdateFunc) error
}
