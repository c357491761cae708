package registry

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertion: *MemLocker satisfies Locker.
var _ Locker = (*MemLocker)(nil)

// MemLocker implements Locker with an in-process map. Suitable for a single
// orchestrator process and for tests.
type MemLocker struct {
	mu     sync.Mutex
	leases map[string]memLease
	now    func() time.Time // overridable in tests
}

type memLease struct {
	sessionID string
	expires   time.Time
}

// NewMemLocker returns an initialized MemLocker.
func NewMemLocker() *MemLocker {
	return &MemLocker{
		leases: make(map[string]memLease),
		now:    time.Now,
	}
}

// Acquire takes the lease unless an unexpired one is held by another session.
func (m *MemLocker) Acquire(_ context.Context, jobKey, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.leases[jobKey]; ok && held.expires.After(m.now()) && held.sessionID != sessionID {
		return ErrAlreadyRunning
	}
	m.leases[jobKey] = memLease{sessionID: sessionID, expires: m.now().Add(ttl)}
	return nil
}

// Renew extends the lease when sessionID still holds it.
func (m *MemLocker) Renew(_ context.Context, jobKey, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[jobKey]
	if !ok || held.sessionID != sessionID || !held.expires.After(m.now()) {
		return ErrLeaseExpired
	}
	held.expires = m.now().Add(ttl)
	m.leases[jobKey] = held
	return nil
}

// Release frees the lease if sessionID holds it; releasing a lost lease is
// not an error.
func (m *MemLocker) Release(_ context.Context, jobKey, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.leases[jobKey]; ok && held.sessionID == sessionID {
		delete(m.leases, jobKey)
	}
	return nil
}
