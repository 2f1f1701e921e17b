package projection

// List is an observable list of entities identified by a string key.
// Every mutation publishes a fresh slice; published slices are never
// modified afterwards, so subscribers may keep them.
type List[T any] struct {
	key   func(T) string
	value *Value[[]T]
}

// NewList creates an empty list keyed by key.
func NewList[T any](key func(T) string) *List[T] {
	return &List[T]{
		key:   key,
		value: NewValue[[]T]([]T{}),
	}
}

// Replace swaps the whole content for items. Duplicate keys collapse into the
// position of their first occurrence, holding the last value seen.
func (l *List[T]) Replace(items []T) {
	next := make([]T, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		k := l.key(item)
		if i, ok := index[k]; ok {
			next[i] = item
			continue
		}
		index[k] = len(next)
		next = append(next, item)
	}
	l.value.Set(next)
}

// Upsert replaces the entry with the same key in place, or appends item.
func (l *List[T]) Upsert(item T) {
	k := l.key(item)
	l.value.Update(func(cur []T) []T {
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		for i := range next {
			if l.key(next[i]) == k {
				next[i] = item
				return next
			}
		}
		return append(next, item)
	})
}

// Remove drops the entry with the given key. It reports whether an entry was
// removed; nothing is published when the key is absent.
func (l *List[T]) Remove(key string) bool {
	removed := false
	l.value.mu.Lock()
	defer l.value.mu.Unlock()

	cur := l.value.current
	next := make([]T, 0, len(cur))
	for _, item := range cur {
		if l.key(item) == key {
			removed = true
			continue
		}
		next = append(next, item)
	}
	if removed {
		l.value.current = next
		l.value.publish(next)
	}
	return removed
}

// Find returns the entry with the given key.
func (l *List[T]) Find(key string) (T, bool) {
	for _, item := range l.value.Get() {
		if l.key(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Items returns a copy of the current entries.
func (l *List[T]) Items() []T {
	cur := l.value.Get()
	out := make([]T, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of entries.
func (l *List[T]) Len() int {
	return len(l.value.Get())
}

// Subscribe observes the list; see Value.Subscribe.
func (l *List[T]) Subscribe() (<-chan []T, func()) {
	return l.value.Subscribe()
}
