package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBackend caches fragments in process with LRU eviction and TTL.
type MemoryBackend struct {
	entries     map[string]*entry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	defaultTTL  time.Duration
	now         func() time.Time
	// LRU list, most recently used after head
	head *entry
	tail *entry

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

var _ Backend = (*MemoryBackend)(nil)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
	prev      *entry
	next      *entry
}

// Stats is a point-in-time view of backend counters.
type Stats struct {
	Entries   int
	Size      int64
	MaxSize   int64
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// NewMemoryBackend creates a backend bounded to maxSize bytes of values.
// A non-positive maxSize disables the bound.
func NewMemoryBackend(maxSize int64, defaultTTL time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		entries:    make(map[string]*entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}

	m.head = &entry{}
	m.tail = &entry{}
	m.head.next = m.tail
	m.tail.prev = m.head

	return m
}

// Get returns the live value stored under key.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.entries[key]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return nil, false, nil
	}

	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.remove(e)
		atomic.AddInt64(&m.misses, 1)
		return nil, false, nil
	}

	m.moveToFront(e)
	atomic.AddInt64(&m.hits, 1)
	return e.value, true, nil
}

// Set stores value under key. ttl zero uses the default TTL; a zero default
// means the entry never expires.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	size := int64(len(value))
	if existing, ok := m.entries[key]; ok {
		m.currentSize += size - existing.size
		existing.value = value
		existing.size = size
		existing.expiresAt = expiresAt
		m.moveToFront(existing)
		m.evictIfNeeded(0)
		atomic.AddInt64(&m.sets, 1)
		return nil
	}

	m.evictIfNeeded(size)

	e := &entry{key: key, value: value, size: size, expiresAt: expiresAt}
	m.entries[key] = e
	m.currentSize += size
	m.addToFront(e)
	atomic.AddInt64(&m.sets, 1)
	return nil
}

// Delete drops key if present.
func (m *MemoryBackend) Delete(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if e, ok := m.entries[key]; ok {
		m.remove(e)
	}
}

// Clear drops every entry and resets statistics.
func (m *MemoryBackend) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries = make(map[string]*entry)
	m.currentSize = 0
	m.head.next = m.tail
	m.tail.prev = m.head

	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
	atomic.StoreInt64(&m.sets, 0)
	atomic.StoreInt64(&m.evictions, 0)
}

// Stats returns current counters.
func (m *MemoryBackend) Stats() Stats {
	m.mutex.Lock()
	count, size := len(m.entries), m.currentSize
	m.mutex.Unlock()

	return Stats{
		Entries:   count,
		Size:      size,
		MaxSize:   m.maxSize,
		Hits:      atomic.LoadInt64(&m.hits),
		Misses:    atomic.LoadInt64(&m.misses),
		Sets:      atomic.LoadInt64(&m.sets),
		Evictions: atomic.LoadInt64(&m.evictions),
	}
}

// evictIfNeeded drops least recently used entries until newSize fits.
// The entry at the front is never evicted for its own insertion.
func (m *MemoryBackend) evictIfNeeded(newSize int64) {
	if m.maxSize <= 0 {
		return
	}
	for m.currentSize+newSize > m.maxSize && m.tail.prev != m.head {
		lru := m.tail.prev
		if newSize == 0 && lru == m.head.next {
			return
		}
		m.remove(lru)
		atomic.AddInt64(&m.evictions, 1)
	}
}

func (m *MemoryBackend) remove(e *entry) {
	m.removeFromList(e)
	delete(m.entries, e.key)
	m.currentSize -= e.size
}

func (m *MemoryBackend) addToFront(e *entry) {
	e.prev = m.head
	e.next = m.head.next
	m.head.next.prev = e
	m.head.next = e
}

func (m *MemoryBackend) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (m *MemoryBackend) moveToFront(e *entry) {
	m.removeFromList(e)
	m.addToFront(e)
}
