package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

// listConcurrency bounds the parallel Gets issued by KVBackend.List.
const listConcurrency = 8

// KVBackend stores each collection in its own NATS JetStream KeyValue
// bucket named "<prefix>-<collection>".
type KVBackend struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	prefix   string
	ownsConn bool

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewKVBackend creates a backend on an existing connection. The caller keeps
// ownership of conn.
func NewKVBackend(conn *nats.Conn, prefix string) (*KVBackend, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &KVBackend{
		conn:    conn,
		js:      js,
		prefix:  prefix,
		buckets: make(map[string]jetstream.KeyValue),
	}, nil
}

// DialKVBackend connects to natsURL and creates a backend that owns the
// connection.
func DialKVBackend(natsURL, prefix string) (*KVBackend, error) {
	conn, err := nats.Connect(natsURL, nats.Name("catalog-sync recordstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b, err := NewKVBackend(conn, prefix)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.ownsConn = true
	return b, nil
}

// bucket returns the KeyValue bucket for collection, creating it on first use.
func (b *KVBackend) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kv, ok := b.buckets[collection]; ok {
		return kv, nil
	}

	name := b.prefix + "-" + collection
	kv, err := b.js.KeyValue(ctx, name)
	if err != nil {
		kv, err = b.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: "Records of collection " + collection,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create key-value bucket %s: %w", name, err)
		}
	}
	b.buckets[collection] = kv
	return kv, nil
}

// Create stores data under key unless the key is taken.
func (b *KVBackend) Create(ctx context.Context, collection, key string, data []byte) error {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := kv.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to create key: %w", err)
	}
	return nil
}

// Get returns the latest value of key.
func (b *KVBackend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return entry.Value(), nil
}

// List fetches every live key of the bucket. Keys deleted between listing
// and fetching are left out.
func (b *KVBackend) List(ctx context.Context, collection string) ([]Entry, error) {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	found := make([]*Entry, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			entry, err := kv.Get(gctx, key)
			if err != nil {
				if errors.Is(err, jetstream.ErrKeyNotFound) {
					return nil
				}
				return fmt.Errorf("failed to get key %s: %w", key, err)
			}
			found[i] = &Entry{Key: key, Data: entry.Value()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(found))
	for _, e := range found {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

// Update overwrites key, guarded by the revision it was read at.
func (b *KVBackend) Update(ctx context.Context, collection, key string, data []byte) error {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get key: %w", err)
	}
	if _, err := kv.Update(ctx, key, data, entry.Revision()); err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	return nil
}

// Delete places a delete marker on key. Missing keys are fine.
func (b *KVBackend) Delete(ctx context.Context, collection, key string) error {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return err
	}
	if err := kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Ping round-trips to the NATS server.
func (b *KVBackend) Ping(ctx context.Context) error {
	if b.conn == nil || !b.conn.IsConnected() {
		return errors.New("not connected to NATS")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	return b.conn.FlushWithContext(ctx)
}

// Close closes the connection if the backend dialed it.
func (b *KVBackend) Close() error {
	if b.ownsConn && b.conn != nil {
		b.conn.Close()
	}
	return nil
}
