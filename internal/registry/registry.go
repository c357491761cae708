package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning is returned by Acquire when an unexpired session
	// already holds the job key. Not retried automatically.
	ErrAlreadyRunning = errors.New("registry: a session is already running for this job key")

	// ErrLeaseExpired signals the lease was lost and the session has been
	// reclaimed. It is the only source of forced cancellation.
	ErrLeaseExpired = errors.New("registry: session lease expired")

	// ErrUnknownSession is returned for queries about sessions the
	// registry never created.
	ErrUnknownSession = errors.New("registry: unknown session")
)

// Status is the lifecycle state of an execution session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusHalted    Status = "halted"
	StatusFailed    Status = "failed"
)

// Session is one orchestration run for one job key.
type Session struct {
	ID        string
	JobKey    string
	StartedAt time.Time
	Status    Status
}

// Locker is the lease backend. Implementations: MemLocker (in-process),
// RedisLocker (cross-process, SET NX + TTL).
type Locker interface {
	// Acquire takes the lease for jobKey on behalf of sessionID, failing
	// with ErrAlreadyRunning when another unexpired session holds it.
	// Expired leases are reclaimed.
	Acquire(ctx context.Context, jobKey, sessionID string, ttl time.Duration) error

	// Renew extends the lease; ErrLeaseExpired when the lease was lost.
	Renew(ctx context.Context, jobKey, sessionID string, ttl time.Duration) error

	// Release frees the lease if sessionID still holds it.
	Release(ctx context.Context, jobKey, sessionID string) error
}

// Registry guarantees at most one active orchestration session per job key
// and owns session lifecycle. The lease is renewed on a heartbeat; a crashed
// process stops renewing and the slot reclaims itself at TTL expiry.
type Registry struct {
	locker Locker
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session // terminal sessions retained for queries
}

// New creates a Registry over the given lease backend. ttl must be positive;
// logger may be nil.
func New(locker Locker, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		locker:   locker,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Lease is a held session slot. Context() is cancelled only when the lease
// is lost; Release must be called on every terminal path.
type Lease struct {
	registry *Registry
	session  *Session
	ctx      context.Context
	cancel   context.CancelCauseFunc
	stop     chan struct{}
	stopOnce sync.Once
}

// Acquire starts a session for jobKey. It fails fast with ErrAlreadyRunning
// when the slot is held; callers report that to the submitter unretried.
func (r *Registry) Acquire(ctx context.Context, jobKey string) (*Lease, error) {
	if r.ttl <= 0 {
		return nil, fmt.Errorf("registry: non-positive lease ttl %v", r.ttl)
	}

	session := &Session{
		ID:        uuid.NewString(),
		JobKey:    jobKey,
		StartedAt: time.Now(),
		Status:    StatusRunning,
	}
	if err := r.locker.Acquire(ctx, jobKey, session.ID, r.ttl); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		registry: r,
		session:  session,
		ctx:      leaseCtx,
		cancel:   cancel,
		stop:     make(chan struct{}),
	}
	go l.heartbeat(r.ttl / 3)

	r.logger.Info("session acquired",
		zap.String("sessionID", session.ID),
		zap.String("jobKey", jobKey))
	return l, nil
}

// Lookup returns a copy of the session with the given ID.
func (r *Registry) Lookup(sessionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	return *s, nil
}

func (r *Registry) setStatus(sessionID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Status = status
	}
}

// SessionID returns the held session's identifier.
func (l *Lease) SessionID() string { return l.session.ID }

// Context is cancelled with ErrLeaseExpired when the lease is lost. Task
// timeouts never cancel it; they degrade locally instead.
func (l *Lease) Context() context.Context { return l.ctx }

// Release frees the slot and records the session's terminal status.
func (l *Lease) Release(ctx context.Context, status Status) error {
	l.stopOnce.Do(func() { close(l.stop) })
	defer l.cancel(nil)
	l.registry.setStatus(l.session.ID, status)
	if err := l.registry.locker.Release(ctx, l.session.JobKey, l.session.ID); err != nil {
		return fmt.Errorf("registry: release %s: %w", l.session.ID, err)
	}
	l.registry.logger.Info("session released",
		zap.String("sessionID", l.session.ID),
		zap.String("status", string(status)))
	return nil
}

// heartbeat renews the lease until the session releases or renewal fails.
// A failed renewal reclaims the session: the lease context is cancelled and
// the session is marked failed. In-flight merges must be discarded by the
// caller so they cannot replay into a later session's context.
func (l *Lease) heartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			err := l.registry.locker.Renew(l.ctx, l.session.JobKey, l.session.ID, l.registry.ttl)
			if err == nil {
				continue
			}
			l.registry.logger.Warn("lease renewal failed; reclaiming session",
				zap.String("sessionID", l.session.ID),
				zap.Error(err))
			l.registry.setStatus(l.session.ID, StatusFailed)
			l.cancel(ErrLeaseExpired)
			return
		}
	}
}
