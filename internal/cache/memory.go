package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// DefaultCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultCapacity = 10000

// MemoryStore is an in-process LRU Store. Sticky entries are never evicted
// and do not count against the capacity.
type MemoryStore struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	sticky  int
}

type memEntry struct {
	key     string
	value   []byte
	expires time.Time
	sticky  bool
}

// NewMemoryStore creates a store holding up to capacity expiring entries.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// lookup returns the live element for key, dropping it if expired. mu must be held.
func (m *MemoryStore) lookup(key string) (*list.Element, bool) {
	elem, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*memEntry)
	if !e.sticky && !m.now().Before(e.expires) {
		m.remove(elem)
		return nil, false
	}
	return elem, true
}

func (m *MemoryStore) remove(elem *list.Element) {
	e := m.lru.Remove(elem).(*memEntry)
	delete(m.entries, e.key)
	if e.sticky {
		m.sticky--
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	m.lru.MoveToFront(elem)
	return append([]byte(nil), elem.Value.(*memEntry).value...), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, opts SetOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.lookup(key); ok {
		if elem.Value.(*memEntry).sticky && !opts.Replace {
			return nil
		}
		m.remove(elem)
	}

	e := &memEntry{key: key, value: append([]byte(nil), value...), sticky: opts.Sticky}
	if !opts.Sticky {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = m.ttl
		}
		e.expires = m.now().Add(ttl)
	} else {
		m.sticky++
	}
	m.entries[key] = m.lru.PushFront(e)

	for m.lru.Len()-m.sticky > m.capacity {
		if !m.evictOldest() {
			break
		}
	}
	return nil
}

// evictOldest removes the least recently used non-sticky entry.
func (m *MemoryStore) evictOldest() bool {
	for elem := m.lru.Back(); elem != nil; elem = elem.Prev() {
		if !elem.Value.(*memEntry).sticky {
			m.remove(elem)
			return true
		}
	}
	return false
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok, nil
}

// Keys implements Store, most recently used first.
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, m.lru.Len())
	for elem := m.lru.Front(); elem != nil; {
		next := elem.Next()
		key := elem.Value.(*memEntry).key
		if _, ok := m.lookup(key); ok {
			keys = append(keys, key)
		}
		elem = next
	}
	return keys, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, alsoSticky bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for elem := m.lru.Front(); elem != nil; {
		next := elem.Next()
		if alsoSticky || !elem.Value.(*memEntry).sticky {
			m.remove(elem)
		}
		elem = next
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
