package recordstore

import (
	"fmt"
	"regexp"

	nanoid "github.com/jaevor/go-nanoid"
)

// keyLength matches the default nanoid size.
const keyLength = 21

// Keys and collection names must be usable as NATS KV keys, bucket name
// suffixes, redis hash fields and SQL values alike.
var (
	keyPattern        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	collectionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// NewKeyGenerator returns a generator of URL-safe random record keys.
func NewKeyGenerator() (func() string, error) {
	gen, err := nanoid.Standard(keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create key generator: %w", err)
	}
	return gen, nil
}

// ValidateKey checks that key can address a record.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateCollection checks that name can be used as a collection.
func ValidateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
