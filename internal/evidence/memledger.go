package evidence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion: *MemLedger satisfies Ledger.
var _ Ledger = (*MemLedger)(nil)

// MemLedger implements Ledger with Go maps. Thread-safe via sync.RWMutex.
// Records are kept in append order for deterministic queries.
type MemLedger struct {
	mu    sync.RWMutex
	byID  map[string]Record
	order []string // insertion-order record IDs
}

// NewMemLedger returns an initialized MemLedger ready for use.
func NewMemLedger() *MemLedger {
	return &MemLedger{byID: make(map[string]Record)}
}

// Append stores a record, assigning a UUID when the record has none.
func (m *MemLedger) Append(_ context.Context, rec Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := m.byID[rec.ID]; exists {
		return "", fmt.Errorf("evidence: duplicate record ID %q", rec.ID)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	m.byID[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec.ID, nil
}

// Get returns the record with the given ID, or nil if absent.
func (m *MemLedger) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ByClaim returns all records supporting a claim, oldest first.
func (m *MemLedger) ByClaim(_ context.Context, claim string) ([]Record, error) {
	return m.scan(func(r Record) bool { return r.Claim == claim }), nil
}

// ByNamespace returns all records in a key-namespace, oldest first.
func (m *MemLedger) ByNamespace(_ context.Context, namespace string) ([]Record, error) {
	return m.scan(func(r Record) bool { return r.Namespace == namespace }), nil
}

// ByTask returns all records contributed by a task, oldest first.
func (m *MemLedger) ByTask(_ context.Context, task string) ([]Record, error) {
	return m.scan(func(r Record) bool { return r.SourceTask == task }), nil
}

// Len returns the total number of records.
func (m *MemLedger) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

// Close is a no-op for the in-memory ledger.
func (m *MemLedger) Close() error { return nil }

func (m *MemLedger) scan(match func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, id := range m.order {
		if rec := m.byID[id]; match(rec) {
			out = append(out, rec)
		}
	}
	return out
}
