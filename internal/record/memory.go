package record

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in memory, guarded by an RWMutex so concurrent
// API readers do not block each other.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func key(recordType, id string) string { return recordType + "/" + id }

// Put inserts or replaces a copy of r.
func (m *MemoryStore) Put(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	m.records[key(r.recordType, r.id)] = r.Clone()
	return nil
}

// Load returns a copy of the stored record bound to m, with the named
// attachments declared.
func (m *MemoryStore) Load(_ context.Context, recordType, id string, attachments []string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key(recordType, id)]
	if !ok {
		return nil, ErrNotFound
	}
	c := rec.Clone().Bind(m)
	for _, a := range attachments {
		c.Attach(a)
	}
	return c, nil
}

// LoadOrNew returns the stored record, or a new bound one when absent.
func (m *MemoryStore) LoadOrNew(ctx context.Context, recordType, id string, attachments []string) (*Record, error) {
	return LoadOrNew(ctx, m, recordType, id, attachments)
}

// Delete removes a record.
func (m *MemoryStore) Delete(_ context.Context, recordType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key(recordType, id)]; !ok {
		return ErrNotFound
	}
	delete(m.records, key(recordType, id))
	return nil
}
