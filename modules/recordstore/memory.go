package recordstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory. Listing returns records in
// insertion order.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	closed      bool
}

type memoryCollection struct {
	keys []string
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]*memoryCollection),
	}
}

func (b *MemoryBackend) collection(name string) *memoryCollection {
	c, ok := b.collections[name]
	if !ok {
		c = &memoryCollection{data: make(map[string][]byte)}
		b.collections[name] = c
	}
	return c
}

// Create stores data under key.
func (b *MemoryBackend) Create(_ context.Context, collection, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendNotOpen
	}

	c := b.collection(collection)
	if _, exists := c.data[key]; exists {
		return ErrKeyExists
	}
	c.keys = append(c.keys, key)
	c.data[key] = clone(data)
	return nil
}

// Get returns the data stored under key.
func (b *MemoryBackend) Get(_ context.Context, collection, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBackendNotOpen
	}

	c, ok := b.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := c.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(data), nil
}

// List returns all entries of collection.
func (b *MemoryBackend) List(_ context.Context, collection string) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBackendNotOpen
	}

	c, ok := b.collections[collection]
	if !ok {
		return []Entry{}, nil
	}
	entries := make([]Entry, 0, len(c.keys))
	for _, k := range c.keys {
		entries = append(entries, Entry{Key: k, Data: clone(c.data[k])})
	}
	return entries, nil
}

// Update overwrites the data stored under key.
func (b *MemoryBackend) Update(_ context.Context, collection, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendNotOpen
	}

	c, ok := b.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, exists := c.data[key]; !exists {
		return ErrNotFound
	}
	c.data[key] = clone(data)
	return nil
}

// Delete removes key from collection.
func (b *MemoryBackend) Delete(_ context.Context, collection, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendNotOpen
	}

	c, ok := b.collections[collection]
	if !ok {
		return nil
	}
	if _, exists := c.data[key]; !exists {
		return nil
	}
	delete(c.data, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Ping fails once the backend is closed.
func (b *MemoryBackend) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBackendNotOpen
	}
	return nil
}

// Close marks the backend closed.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
