package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// updateScript overwrites a hash field only when it already exists.
var updateScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// RedisBackend stores each collection as one redis hash "<prefix><collection>"
// with one field per record.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a backend on an existing client.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: prefix,
	}
}

// DialRedisBackend connects to redis and verifies the connection.
func DialRedisBackend(ctx context.Context, addr, password string, db int, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisBackend(client, prefix), nil
}

func (b *RedisBackend) hashKey(collection string) string {
	return b.prefix + collection
}

// Create sets the field only if it does not exist yet.
func (b *RedisBackend) Create(ctx context.Context, collection, key string, data []byte) error {
	ok, err := b.client.HSetNX(ctx, b.hashKey(collection), key, data).Result()
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Get returns the field value.
func (b *RedisBackend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, err := b.client.HGet(ctx, b.hashKey(collection), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return data, nil
}

// List returns every field of the hash, sorted by key.
func (b *RedisBackend) List(ctx context.Context, collection string) ([]Entry, error) {
	all, err := b.client.HGetAll(ctx, b.hashKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Data: []byte(all[k])})
	}
	return entries, nil
}

// Update overwrites an existing field atomically.
func (b *RedisBackend) Update(ctx context.Context, collection, key string, data []byte) error {
	n, err := updateScript.Run(ctx, b.client, []string{b.hashKey(collection)}, key, data).Int()
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the field.
func (b *RedisBackend) Delete(ctx context.Context, collection, key string) error {
	if err := b.client.HDel(ctx, b.hashKey(collection), key).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
