// Package recordstore is a typed keyed-record client over a remote document
// store. Each call maps to a single remote operation: no retries, no
// batching, no caching.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Entity is implemented by record types the client can store. The key is
// kept outside the stored body's control: the client stamps it on every read
// and write.
type Entity[T any] interface {
	RecordKey() string
	WithRecordKey(key string) T
}

// Entry is a raw record as held by a Backend.
type Entry struct {
	Key  string
	Data []byte
}

// Backend is the remote service the client talks to. Implementations map
// missing records to ErrNotFound and key collisions on Create to
// ErrKeyExists. Delete of a missing key succeeds.
type Backend interface {
	Create(ctx context.Context, collection, key string, data []byte) error
	Get(ctx context.Context, collection, key string) ([]byte, error)
	List(ctx context.Context, collection string) ([]Entry, error)
	Update(ctx context.Context, collection, key string, data []byte) error
	Delete(ctx context.Context, collection, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the typed record contract the repositories expose.
type Store[T any] interface {
	Create(ctx context.Context, record T) (string, error)
	Get(ctx context.Context, id string) (T, error)
	ListAll(ctx context.Context) ([]T, error)
	Update(ctx context.Context, id string, record T) error
	Delete(ctx context.Context, id string) error
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	newKey func() string
}

// WithKeyGenerator overrides the key generator used by Create.
func WithKeyGenerator(gen func() string) ClientOption {
	return func(o *clientOptions) {
		o.newKey = gen
	}
}

// Client is a Store for one collection of a Backend.
type Client[T Entity[T]] struct {
	backend    Backend
	collection string
	newKey     func() string
}

// NewClient creates a client scoped to collection.
func NewClient[T Entity[T]](backend Backend, collection string, opts ...ClientOption) (*Client[T], error) {
	if backend == nil {
		return nil, ErrBackendNotOpen
	}
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.newKey == nil {
		gen, err := NewKeyGenerator()
		if err != nil {
			return nil, err
		}
		o.newKey = gen
	}

	return &Client[T]{
		backend:    backend,
		collection: collection,
		newKey:     o.newKey,
	}, nil
}

// Collection returns the collection the client is scoped to.
func (c *Client[T]) Collection() string {
	return c.collection
}

// Create writes record under a freshly generated key and returns the key.
func (c *Client[T]) Create(ctx context.Context, record T) (string, error) {
	key := c.newKey()
	data, err := json.Marshal(record.WithRecordKey(key))
	if err != nil {
		return "", c.fail("create", key, fmt.Errorf("failed to encode record: %w", err))
	}
	if err := c.backend.Create(ctx, c.collection, key, data); err != nil {
		return "", c.fail("create", key, err)
	}
	return key, nil
}

// Get reads the record stored under id.
func (c *Client[T]) Get(ctx context.Context, id string) (T, error) {
	var record T
	if err := ValidateKey(id); err != nil {
		return record, c.fail("get", id, err)
	}
	data, err := c.backend.Get(ctx, c.collection, id)
	if err != nil {
		return record, c.fail("get", id, err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, c.fail("get", id, fmt.Errorf("failed to decode record: %w", err))
	}
	return record.WithRecordKey(id), nil
}

// ListAll returns every record of the collection in backend order. Records
// that cannot be decoded are skipped.
func (c *Client[T]) ListAll(ctx context.Context) ([]T, error) {
	entries, err := c.backend.List(ctx, c.collection)
	if err != nil {
		return nil, c.fail("list", "", err)
	}

	records := make([]T, 0, len(entries))
	for _, e := range entries {
		var record T
		if err := json.Unmarshal(e.Data, &record); err != nil {
			log.Printf("[recordstore] Skipping undecodable record %s/%s: %v", c.collection, e.Key, err)
			continue
		}
		records = append(records, record.WithRecordKey(e.Key))
	}
	return records, nil
}

// Update overwrites the record stored under id. It fails with ErrNotFound
// when there is nothing to overwrite.
func (c *Client[T]) Update(ctx context.Context, id string, record T) error {
	if err := ValidateKey(id); err != nil {
		return c.fail("update", id, err)
	}
	data, err := json.Marshal(record.WithRecordKey(id))
	if err != nil {
		return c.fail("update", id, fmt.Errorf("failed to encode record: %w", err))
	}
	if err := c.backend.Update(ctx, c.collection, id, data); err != nil {
		return c.fail("update", id, err)
	}
	return nil
}

// Delete removes the record stored under id. Missing records are not an
// error.
func (c *Client[T]) Delete(ctx context.Context, id string) error {
	if err := ValidateKey(id); err != nil {
		return c.fail("delete", id, err)
	}
	if err := c.backend.Delete(ctx, c.collection, id); err != nil {
		return c.fail("delete", id, err)
	}
	return nil
}

func (c *Client[T]) fail(op, key string, err error) error {
	return &StoreError{Op: op, Collection: c.collection, Key: key, Err: err}
}

