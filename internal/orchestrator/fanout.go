package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dusk-indust/inquest/internal/agent"
	"github.com/dusk-indust/inquest/internal/config"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/observe"
)

// TaskOutcome is the settled result of one task after retry policy has been
// applied. Degraded outcomes carry an empty, zero-confidence result rather
// than an error; only session-level cancellation aborts a fan-out.
type TaskOutcome struct {
	Task     string
	Agent    string
	Result   *agent.Result
	Degraded bool
	Err      error // last failure when Degraded; nil otherwise
}

// FanOut dispatches every task of a phase in parallel on a bounded worker
// pool and collects settled outcomes. A task that times out or errors is
// retried once with the same input snapshot; a second failure degrades the
// task instead of failing the phase.
type FanOut struct {
	agents         *agent.Registry
	workers        int64
	defaultTimeout time.Duration
	logger         *zap.Logger
	onEvent        func(observe.Event)
}

// NewFanOut creates a FanOut. onEvent is called from worker goroutines and
// may be nil.
func NewFanOut(agents *agent.Registry, workers int, defaultTimeout time.Duration, logger *zap.Logger, onEvent func(observe.Event)) *FanOut {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOut{
		agents:         agents,
		workers:        int64(workers),
		defaultTimeout: defaultTimeout,
		logger:         logger,
		onEvent:        onEvent,
	}
}

// Run executes every task against the same input snapshot. All outcomes are
// settled in task order. The returned error is non-nil only when ctx is
// cancelled, which is the lease-expiry path; individual task failures
// degrade instead.
func (f *FanOut) Run(ctx context.Context, phase string, tasks []config.TaskSpec, snap *ctxstore.Snapshot, board agent.Board) ([]TaskOutcome, error) {
	outcomes := make([]TaskOutcome, len(tasks))
	sem := semaphore.NewWeighted(f.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		f.emit(observe.Event{Kind: observe.EventTask, Phase: phase, Task: task.Name, Status: "pending"})

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			f.emit(observe.Event{Kind: observe.EventTask, Phase: phase, Task: task.Name, Status: "running"})
			outcome := f.runTask(gctx, task, snap, board)
			outcome.Task = task.Name
			outcome.Agent = task.Agent
			outcomes[i] = outcome

			status := "done"
			msg := ""
			if outcome.Degraded {
				status = "degraded"
				if outcome.Err != nil {
					msg = outcome.Err.Error()
				}
			}
			f.emit(observe.Event{Kind: observe.EventTask, Phase: phase, Task: task.Name, Status: status, Message: msg})

			// Only session cancellation propagates; degraded tasks must not
			// abort their peers.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (f *FanOut) runTask(ctx context.Context, task config.TaskSpec, snap *ctxstore.Snapshot, board agent.Board) TaskOutcome {
	adapter, err := f.agents.Spawn(task.Agent)
	if err != nil {
		return TaskOutcome{Degraded: true, Err: err, Result: degradedResult()}
	}
	if aware, ok := adapter.(agent.InterimAware); ok && board != nil {
		aware.BindInterim(board)
	}

	timeout := task.Timeout.Duration
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	retries := task.Retries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		res, err := f.runOnce(ctx, adapter, snap, timeout)
		if err == nil && res.Status != agent.StatusFailed {
			return TaskOutcome{Result: res, Degraded: res.Status == agent.StatusDegraded}
		}
		if err == nil {
			err = errors.New("adapter reported failed status")
		}
		lastErr = err
		if ctx.Err() != nil {
			// Session cancelled; do not retry against a dead lease.
			return TaskOutcome{Degraded: true, Err: ctx.Err(), Result: degradedResult()}
		}
		f.logger.Warn("task attempt failed",
			zap.String("task", task.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return TaskOutcome{Degraded: true, Err: lastErr, Result: degradedResult()}
}

func (f *FanOut) runOnce(ctx context.Context, adapter agent.Adapter, snap *ctxstore.Snapshot, timeout time.Duration) (*agent.Result, error) {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return adapter.Run(taskCtx, snap)
}

func (f *FanOut) emit(ev observe.Event) {
	if f.onEvent != nil {
		f.onEvent(ev)
	}
}

// degradedResult is the contribution of a task that exhausted its retries:
// no findings, no evidence, zero confidence.
func degradedResult() *agent.Result {
	return &agent.Result{Confidence: 0, Status: agent.StatusDegraded}
}
