package session

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Store persists session data by id.
type Store interface {
	// Load returns nil data and no error for unknown or expired ids.
	Load(ctx context.Context, id string) (map[string]any, error)
	Save(ctx context.Context, id string, data map[string]any, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

func encode(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

// decode keeps numbers as json.Number so ids survive the round trip unchanged.
func decode(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// sweepInterval is how often Save drops expired sessions that were never loaded again.
const sweepInterval = time.Minute

type memoryItem struct {
	payload []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Data is serialised like the Redis store so
// both behave the same.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]memoryItem
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	item, ok := m.items[id]
	if ok && !m.now().Before(item.expires) {
		delete(m.items, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decode(item.payload)
}

func (m *MemoryStore) Save(_ context.Context, id string, data map[string]any, ttl time.Duration) error {
	b, err := encode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	now := m.now()
	m.items[id] = memoryItem{payload: b, expires: now.Add(ttl)}
	m.sweep(now)
	m.mu.Unlock()
	return nil
}

// sweep removes expired items at most once per sweepInterval. m.mu must be held.
func (m *MemoryStore) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for id, item := range m.items {
		if !now.Before(item.expires) {
			delete(m.items, id)
		}
	}
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions, expired ones included until the next sweep.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
