//go:build e2e

package e2e

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/inquest/internal/agent"
	"github.com/dusk-indust/inquest/internal/config"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
	"github.com/dusk-indust/inquest/internal/orchestrator"
	"github.com/dusk-indust/inquest/internal/registry"
)

// investigator is a scripted in-process adapter.
type investigator struct {
	kind string
	run  func(ctx context.Context, snap *ctxstore.Snapshot) (*agent.Result, error)
}

func (a *investigator) Kind() string { return a.kind }

func (a *investigator) Run(ctx context.Context, snap *ctxstore.Snapshot) (*agent.Result, error) {
	return a.run(ctx, snap)
}

func supported(ns, name string, v ctxstore.Value, claim string, kind evidence.Kind, confidence float64) (ctxstore.Entry, evidence.Record) {
	rec := evidence.Record{ID: uuid.NewString(), Claim: claim, Namespace: ns, Kind: kind}
	return ctxstore.Entry{
		Key:          ctxstore.Key{Namespace: ns, Name: name},
		Value:        v,
		Confidence:   confidence,
		EvidenceRefs: []string{rec.ID},
	}, rec
}

// TestSession_E2E_FullInvestigation runs a three-phase plan end to end: a
// fan-out survey with a value disagreement, a remote investigator over HTTP,
// and a task that degrades after its retry. The artifact must carry the
// evidence-strength winner, the remote finding, and the degradation caveat.
func TestSession_E2E_FullInvestigation(t *testing.T) {
	agents := agent.NewRegistry()

	// Two survey probes disagree on deploy/status; implementation evidence
	// outweighs the single deployment record.
	require.NoError(t, agents.Register("doc-probe", func() agent.Adapter {
		return &investigator{kind: "doc-probe", run: func(_ context.Context, _ *ctxstore.Snapshot) (*agent.Result, error) {
			e, r := supported("deploy", "status", ctxstore.BoolValue(true), "feature is deployed", evidence.KindDeployment, 0.6)
			return &agent.Result{Findings: []ctxstore.Entry{e}, Evidence: []evidence.Record{r}, Confidence: 0.6, Status: agent.StatusDone}, nil
		}}
	}))
	require.NoError(t, agents.Register("code-probe", func() agent.Adapter {
		return &investigator{kind: "code-probe", run: func(_ context.Context, _ *ctxstore.Snapshot) (*agent.Result, error) {
			e1, r1 := supported("deploy", "status", ctxstore.BoolValue(false), "feature exists in source but is not deployed", evidence.KindImplementation, 0.9)
			r2 := evidence.Record{ID: uuid.NewString(), Claim: "feature exists in source but is not deployed", Namespace: "deploy", Kind: evidence.KindImplementation}
			e1.EvidenceRefs = append(e1.EvidenceRefs, r2.ID)
			return &agent.Result{Findings: []ctxstore.Entry{e1}, Evidence: []evidence.Record{r1, r2}, Confidence: 0.9, Status: agent.StatusDone}, nil
		}}
	}))

	// The deepen phase uses a remote investigator behind the HTTP seam.
	remoteBackend := &investigator{kind: "runtime-probe", run: func(_ context.Context, snap *ctxstore.Snapshot) (*agent.Result, error) {
		if _, ok := snap.Get(ctxstore.Key{Namespace: "deploy", Name: "status"}); !ok {
			return nil, context.Canceled
		}
		e, r := supported("runtime", "handler", ctxstore.StringValue("grpc"), "request handling uses grpc", evidence.KindPattern, 0.8)
		return &agent.Result{Findings: []ctxstore.Entry{e}, Evidence: []evidence.Record{r}, Confidence: 0.8, Status: agent.StatusDone}, nil
	}}
	srv := httptest.NewServer(agent.NewServer(remoteBackend).Handler())
	defer srv.Close()
	require.NoError(t, agents.Register("runtime-probe", func() agent.Adapter {
		return agent.NewRemote(srv.URL, "runtime-probe")
	}))

	// The verify phase hangs and degrades.
	require.NoError(t, agents.Register("flaky-probe", func() agent.Adapter {
		return &investigator{kind: "flaky-probe", run: func(ctx context.Context, _ *ctxstore.Snapshot) (*agent.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
	}))

	cfg := &config.Config{
		Phases: []config.PhaseSpec{
			{Name: "survey", Tasks: []config.TaskSpec{
				{Name: "docs", Agent: "doc-probe"},
				{Name: "code", Agent: "code-probe"},
			}},
			{Name: "deepen", DependsOn: []string{"survey"}, Tasks: []config.TaskSpec{
				{Name: "runtime", Agent: "runtime-probe"},
			}},
			{Name: "verify", DependsOn: []string{"deepen"}, Tasks: []config.TaskSpec{
				{Name: "recheck", Agent: "flaky-probe", Timeout: config.Duration{Duration: 50 * time.Millisecond}},
			}},
		},
		LeaseTTL:        config.Duration{Duration: time.Minute},
		TaskTimeout:     config.Duration{Duration: 2 * time.Second},
		Workers:         4,
		MinimumEvidence: 1,
	}
	require.NoError(t, cfg.Validate())

	reg := registry.New(registry.NewMemLocker(), time.Minute, zap.NewNop())
	core := orchestrator.NewCore(cfg, agents, reg, zap.NewNop())
	defer core.Close()

	id, err := core.Submit(context.Background(), "ticket/INQ-42", nil)
	require.NoError(t, err)

	art, err := core.Wait(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, art)

	// Evidence strength resolved the disagreement toward "not deployed".
	var statusValue *ctxstore.Value
	for _, c := range art.Claims {
		if c.Key == (ctxstore.Key{Namespace: "deploy", Name: "status"}) {
			v := c.Value
			statusValue = &v
		}
	}
	require.NotNil(t, statusValue, "the contested key must survive into the artifact")
	assert.True(t, statusValue.Equal(ctxstore.BoolValue(false)))

	// The remote investigator's finding made it through the HTTP seam.
	foundRuntime := false
	for _, c := range art.Claims {
		if c.Key == (ctxstore.Key{Namespace: "runtime", Name: "handler"}) {
			foundRuntime = true
		}
	}
	assert.True(t, foundRuntime)

	// The flaky task degraded without failing the session.
	require.NotEmpty(t, art.Caveats)
	assert.Contains(t, art.Caveats[len(art.Caveats)-1], "recheck degraded")

	// The resolution is in the audit trail.
	flow, err := core.Monitor().ContextFlow(id)
	require.NoError(t, err)
	require.Len(t, flow.Versions, 4, "foundation plus one snapshot per phase")
	require.NotEmpty(t, flow.Mutations)

	conflicts, err := core.Monitor().Conflicts(id)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "resolved", string(conflicts[0].Status))
}

// TestSession_E2E_SingleSessionPerJob races many submissions for one job
// key; exactly one may win while the winner is still running.
func TestSession_E2E_SingleSessionPerJob(t *testing.T) {
	agents := agent.NewRegistry()
	release := make(chan struct{})
	require.NoError(t, agents.Register("slow", func() agent.Adapter {
		return &investigator{kind: "slow", run: func(ctx context.Context, _ *ctxstore.Snapshot) (*agent.Result, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			e, r := supported("svc", "language", ctxstore.StringValue("go"), "service is written in go", evidence.KindImplementation, 0.9)
			return &agent.Result{Findings: []ctxstore.Entry{e}, Evidence: []evidence.Record{r}, Confidence: 0.9, Status: agent.StatusDone}, nil
		}}
	}))

	cfg := &config.Config{
		Phases:          []config.PhaseSpec{{Name: "survey", Tasks: []config.TaskSpec{{Name: "probe", Agent: "slow"}}}},
		LeaseTTL:        config.Duration{Duration: time.Minute},
		TaskTimeout:     config.Duration{Duration: 5 * time.Second},
		Workers:         2,
		MinimumEvidence: 1,
	}
	reg := registry.New(registry.NewMemLocker(), time.Minute, zap.NewNop())
	core := orchestrator.NewCore(cfg, agents, reg, zap.NewNop())
	defer core.Close()

	const submitters = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := core.Submit(context.Background(), "job-1", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, id)
				return
			}
			assert.ErrorIs(t, err, registry.ErrAlreadyRunning)
			losers++
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1, "exactly one concurrent submission wins")
	assert.Equal(t, submitters-1, losers)

	close(release)
	_, err := core.Wait(context.Background(), winners[0])
	require.NoError(t, err)
}
