package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/inquest/internal/agent"
	"github.com/dusk-indust/inquest/internal/artifact"
	"github.com/dusk-indust/inquest/internal/config"
	"github.com/dusk-indust/inquest/internal/conflict"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
	"github.com/dusk-indust/inquest/internal/observe"
	"github.com/dusk-indust/inquest/internal/registry"
)

// Core coordinates investigation sessions. Each Submit acquires the job's
// single-session lease, runs the phase plan against a fresh context store
// and evidence ledger, and finishes with either an artifact or a structured
// halt reason.
type Core struct {
	cfg      *config.Config
	agents   *agent.Registry
	registry *registry.Registry
	monitor  *observe.Monitor
	reporter *observe.Reporter
	logger   *zap.Logger

	newLedger func(sessionID string) (evidence.Ledger, error)

	// OnArtifact, when set before Submit, receives every completed
	// session's artifact. Rendering is the consumer's concern.
	OnArtifact func(sessionID string, art *artifact.Artifact)

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	jobKey string
	lease  *registry.Lease
	store  *ctxstore.Store
	ledger evidence.Ledger
	view   *observe.View

	done chan struct{}
	art  *artifact.Artifact
	err  error
}

// NewCore wires a Core. The configuration must already be validated.
func NewCore(cfg *config.Config, agents *agent.Registry, reg *registry.Registry, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Core{
		cfg:      cfg,
		agents:   agents,
		registry: reg,
		monitor:  observe.NewMonitor(reg),
		reporter: observe.NewReporter(),
		logger:   logger,
		sessions: make(map[string]*session),
	}
	c.newLedger = func(sessionID string) (evidence.Ledger, error) {
		if cfg.LedgerPath == "" {
			return evidence.NewMemLedger(), nil
		}
		return evidence.OpenPersistent(filepath.Join(cfg.LedgerPath, sessionID))
	}
	return c
}

// Monitor returns the read-only observability surface.
func (c *Core) Monitor() *observe.Monitor { return c.monitor }

// Events returns the progress event channel.
func (c *Core) Events() <-chan observe.Event { return c.reporter.Subscribe() }

// Close shuts down the event reporter and every session ledger. Call after
// every session finished.
func (c *Core) Close() {
	c.reporter.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sessions {
		if err := s.ledger.Close(); err != nil {
			c.logger.Warn("ledger close failed", zap.String("session", id), zap.Error(err))
		}
	}
}

// Submit starts a session for jobKey, seeding the context store with the
// caller's initial parameters, and returns the session ID. It fails fast
// with registry.ErrAlreadyRunning when an unexpired session holds the job.
func (c *Core) Submit(ctx context.Context, jobKey string, seed []ctxstore.Entry) (string, error) {
	lease, err := c.registry.Acquire(ctx, jobKey)
	if err != nil {
		return "", err
	}
	sessionID := lease.SessionID()

	ledger, err := c.newLedger(sessionID)
	if err != nil {
		_ = lease.Release(ctx, registry.StatusFailed)
		return "", fmt.Errorf("orchestrator: open ledger: %w", err)
	}

	store := ctxstore.New()
	if len(seed) > 0 {
		if err := store.Seed(seed); err != nil {
			_ = ledger.Close()
			_ = lease.Release(ctx, registry.StatusFailed)
			return "", err
		}
	}

	s := &session{
		jobKey: jobKey,
		lease:  lease,
		store:  store,
		ledger: ledger,
		view:   c.monitor.StartSession(sessionID, jobKey, store),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.sessions[sessionID] = s
	c.mu.Unlock()

	go c.run(sessionID, s)
	return sessionID, nil
}

// Wait blocks until the session finishes and returns its artifact. A halted
// or failed session returns a nil artifact and the terminal error.
func (c *Core) Wait(ctx context.Context, sessionID string) (*artifact.Artifact, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil, registry.ErrUnknownSession
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return s.art, s.err
	}
}

// Ledger exposes a session's evidence ledger for read-side queries. Ledgers
// stay open after the session finishes, until Close.
func (c *Core) Ledger(sessionID string) (evidence.Ledger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, registry.ErrUnknownSession
	}
	return s.ledger, nil
}

func (c *Core) run(sessionID string, s *session) {
	defer close(s.done)

	c.reporter.Emit(observe.Event{Kind: observe.EventSession, SessionID: sessionID, Status: "running", Message: s.jobKey})

	sched, err := NewScheduler(c.cfg.Phases)
	if err != nil {
		c.finish(sessionID, s, registry.StatusFailed, err)
		return
	}
	fanout := NewFanOut(c.agents, c.cfg.Workers, c.cfg.TaskTimeout.Duration, c.logger, c.reporter.Emit)
	resolver := conflict.NewResolver(c.cfg.Resolution, s.ledger, c.logger)

	// Tasks flagged for retry by a resolved type mismatch re-run in the
	// next phase against the corrected published snapshot.
	taskIndex := make(map[string]config.TaskSpec)
	for _, p := range c.cfg.Phases {
		for _, t := range p.Tasks {
			taskIndex[t.Name] = t
		}
	}

	var (
		allConflicts []conflict.Conflict
		degraded     []string
		carry        []config.TaskSpec
	)
	leaseCtx := s.lease.Context()

	for i, name := range sched.Order() {
		if err := sched.Start(name); err != nil {
			s.view.SetPhase(name, string(PhaseBlocked))
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}
		s.view.SetPhase(name, string(PhaseRunning))
		c.reporter.Emit(observe.Event{Kind: observe.EventPhase, SessionID: sessionID, Phase: name, Status: "running"})

		spec, _ := sched.Spec(name)
		tasks := withRetries(spec.Tasks, carry)
		carry = nil

		outcomes, err := fanout.Run(leaseCtx, name, tasks, s.store.Latest(), s.store)
		if err != nil {
			// Lease expiry is the only forced cancellation; the in-flight
			// merge is discarded so the next session starts clean.
			s.store.Discard()
			if cause := context.Cause(leaseCtx); cause != nil {
				err = cause
			}
			_ = sched.Fail(name)
			s.view.SetPhase(name, string(PhaseFailed))
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}

		contributions := make([]ctxstore.Entry, 0, len(outcomes))
		for _, o := range outcomes {
			status := "done"
			if o.Degraded {
				status = "degraded"
				degraded = append(degraded, o.Task)
			}
			s.view.SetTask(name, o.Task, status)
			if o.Result == nil {
				continue
			}
			for _, rec := range o.Result.Evidence {
				if _, err := s.ledger.Append(leaseCtx, rec); err != nil {
					c.finish(sessionID, s, registry.StatusFailed, fmt.Errorf("orchestrator: append evidence: %w", err))
					return
				}
			}
			for _, f := range o.Result.Findings {
				if f.SourceTask == "" {
					f.SourceTask = o.Task
				}
				contributions = append(contributions, f)
			}
		}

		pending, collisions, err := s.store.Merge(contributions)
		if err != nil {
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}
		c.reporter.Emit(observe.Event{Kind: observe.EventMerge, SessionID: sessionID, Phase: name,
			Message: fmt.Sprintf("%d contribution(s), %d collision(s)", len(contributions), len(collisions))})

		muts, conflicts, err := resolver.Process(leaseCtx, pending, collisions)
		if err != nil {
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}
		if len(muts) > 0 {
			if _, err := s.store.Apply(muts); err != nil {
				c.finish(sessionID, s, registry.StatusFailed, err)
				return
			}
		}
		s.view.AddConflicts(conflicts)
		allConflicts = append(allConflicts, conflicts...)

		for _, cf := range conflicts {
			c.reporter.Emit(observe.Event{Kind: observe.EventConflict, SessionID: sessionID, Phase: name,
				Status: string(cf.Status), Message: fmt.Sprintf("%s (%s)", cf.Key.String(), cf.Classification)})

			if cf.Critical && cf.Status == conflict.StatusEscalated {
				s.store.Discard()
				err := &CriticalConflictError{Key: cf.Key.String(), Rationale: cf.Rationale}
				s.view.SetHaltReason(err.Error())
				c.finish(sessionID, s, registry.StatusHalted, err)
				return
			}
			if cf.RetryTask != "" {
				if ts, ok := taskIndex[cf.RetryTask]; ok {
					carry = append(carry, ts)
				}
			}
		}

		select {
		case <-leaseCtx.Done():
			s.store.Discard()
			c.finish(sessionID, s, registry.StatusFailed, context.Cause(leaseCtx))
			return
		default:
		}

		if _, err := s.store.Publish(name); err != nil {
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}

		if i == 0 {
			if err := checkMinimumEvidence(leaseCtx, s.ledger, outcomes, c.cfg.MinimumEvidence); err != nil {
				s.view.SetHaltReason(err.Error())
				_ = sched.Fail(name)
				s.view.SetPhase(name, string(PhaseFailed))
				c.finish(sessionID, s, registry.StatusHalted, err)
				return
			}
		}

		if err := sched.Complete(name); err != nil {
			c.finish(sessionID, s, registry.StatusFailed, err)
			return
		}
		s.view.SetPhase(name, string(PhaseCompleted))
		c.reporter.Emit(observe.Event{Kind: observe.EventPhase, SessionID: sessionID, Phase: name, Status: "completed"})
	}

	builder := artifact.NewBuilder(s.ledger, c.logger)
	art, err := builder.Build(leaseCtx, sessionID, s.jobKey, s.store.Latest(), allConflicts, degraded)
	if err != nil {
		c.finish(sessionID, s, registry.StatusFailed, err)
		return
	}
	s.art = art
	if c.OnArtifact != nil {
		c.OnArtifact(sessionID, art)
	}
	c.reporter.Emit(observe.Event{Kind: observe.EventArtifact, SessionID: sessionID,
		Message: fmt.Sprintf("%d claim(s), %d caveat(s)", len(art.Claims), len(art.Caveats))})
	c.finish(sessionID, s, registry.StatusCompleted, nil)
}

func (c *Core) finish(sessionID string, s *session, status registry.Status, err error) {
	s.err = err
	if relErr := s.lease.Release(context.Background(), status); relErr != nil {
		c.logger.Warn("lease release failed", zap.String("session", sessionID), zap.Error(relErr))
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.reporter.Emit(observe.Event{Kind: observe.EventSession, SessionID: sessionID, Status: string(status), Message: msg})
}

// withRetries appends carried retry tasks that are not already scheduled in
// the phase.
func withRetries(tasks, carry []config.TaskSpec) []config.TaskSpec {
	if len(carry) == 0 {
		return tasks
	}
	out := make([]config.TaskSpec, len(tasks), len(tasks)+len(carry))
	copy(out, tasks)
	for _, ct := range carry {
		dup := false
		for _, t := range out {
			if t.Name == ct.Name {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ct)
		}
	}
	return out
}
