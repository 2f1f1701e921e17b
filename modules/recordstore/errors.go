package recordstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for record store operations.
var (
	ErrNotFound       = errors.New("record not found")
	ErrKeyExists      = errors.New("record key already exists")
	ErrInvalidKey     = errors.New("invalid record key")
	ErrUnknownDriver  = errors.New("unknown record store driver")
	ErrBackendNotOpen = errors.New("record store backend not open")
)

// StoreError describes a failed remote operation.
type StoreError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the addressed record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
