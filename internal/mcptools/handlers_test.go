package mcptools

import (
	"context"
	"testing"
	"time"

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

type fixedAdapter struct {
	result agent.Result
}

func (f *fixedAdapter) Kind() string { return "fixed" }

func (f *fixedAdapter) Run(_ context.Context, _ *ctxstore.Snapshot) (*agent.Result, error) {
	res := f.result
	return &res, nil
}

// newTestService wires a Core with one single-task phase whose adapter
// reports a go-language finding backed by implementation evidence.
func newTestService(t *testing.T) *Service {
	t.Helper()

	rec := evidence.Record{
		ID:        "ev-1",
		Claim:     "service is written in go",
		Namespace: "svc",
		Kind:      evidence.KindImplementation,
	}
	adapter := &fixedAdapter{result: agent.Result{
		Findings: []ctxstore.Entry{{
			Key:          ctxstore.Key{Namespace: "svc", Name: "language"},
			Value:        ctxstore.StringValue("go"),
			Confidence:   0.9,
			EvidenceRefs: []string{rec.ID},
		}},
		Evidence:   []evidence.Record{rec},
		Confidence: 0.9,
		Status:     agent.StatusDone,
	}}

	agents := agent.NewRegistry()
	require.NoError(t, agents.Register("fixed", func() agent.Adapter { return adapter }))

	cfg := &config.Config{
		Phases: []config.PhaseSpec{{
			Name:  "survey",
			Tasks: []config.TaskSpec{{Name: "probe", Agent: "fixed"}},
		}},
		LeaseTTL:        config.Duration{Duration: time.Minute},
		TaskTimeout:     config.Duration{Duration: time.Second},
		Workers:         2,
		MinimumEvidence: 1,
	}
	reg := registry.New(registry.NewMemLocker(), time.Minute, zap.NewNop())
	core := orchestrator.NewCore(cfg, agents, reg, zap.NewNop())
	t.Cleanup(core.Close)
	return NewService(core)
}

func TestSubmitJobWaitsForArtifact(t *testing.T) {
	svc := newTestService(t)

	_, out, err := svc.SubmitJob(context.Background(), nil, SubmitJobInput{
		JobKey: "job-1",
		Seed:   map[string]string{"job/ticket": "INQ-42"},
		Wait:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Status)
	require.NotNil(t, out.Artifact)
	require.Len(t, out.Artifact.Claims, 1)
	assert.Equal(t, "service is written in go", out.Artifact.Claims[0].Statement)
}

func TestSubmitJobRejectsBadSeed(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.SubmitJob(context.Background(), nil, SubmitJobInput{
		JobKey: "job-1",
		Seed:   map[string]string{"no-slash": "x"},
	})
	assert.ErrorContains(t, err, "namespace/name")
}

func TestJobStatusAndContextFlow(t *testing.T) {
	svc := newTestService(t)

	_, submitted, err := svc.SubmitJob(context.Background(), nil, SubmitJobInput{JobKey: "job-1", Wait: true})
	require.NoError(t, err)

	_, status, err := svc.JobStatus(context.Background(), nil, JobStatusInput{SessionID: submitted.SessionID})
	require.NoError(t, err)
	assert.Equal(t, "job-1", status.JobKey)
	assert.Equal(t, string(registry.StatusCompleted), status.Status)
	require.Len(t, status.Phases, 1)
	assert.Equal(t, "done", status.Phases[0].Tasks["probe"])

	_, flow, err := svc.ContextFlow(context.Background(), nil, ContextFlowInput{SessionID: submitted.SessionID})
	require.NoError(t, err)
	require.Len(t, flow.Versions, 2)
	assert.Equal(t, "survey", flow.Versions[1].Phase)

	_, _, err = svc.JobStatus(context.Background(), nil, JobStatusInput{SessionID: "ghost"})
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
}

func TestValidateClaim(t *testing.T) {
	svc := newTestService(t)

	_, submitted, err := svc.SubmitJob(context.Background(), nil, SubmitJobInput{JobKey: "job-1", Wait: true})
	require.NoError(t, err)

	_, out, err := svc.ValidateClaim(context.Background(), nil, ValidateClaimInput{
		SessionID: submitted.SessionID,
		Claim:     "service is written in go",
		Namespace: "svc",
	})
	require.NoError(t, err)
	assert.Equal(t, string(evidence.Approved), out.Decision)

	_, out, err = svc.ValidateClaim(context.Background(), nil, ValidateClaimInput{
		SessionID: submitted.SessionID,
		Claim:     "service written in rust",
		Namespace: "svc",
	})
	require.NoError(t, err)
	assert.Equal(t, string(evidence.RequiresAlternative), out.Decision)
	assert.Equal(t, "service is written in go", out.Alternative)
}

func TestListConflictsEmpty(t *testing.T) {
	svc := newTestService(t)

	_, submitted, err := svc.SubmitJob(context.Background(), nil, SubmitJobInput{JobKey: "job-1", Wait: true})
	require.NoError(t, err)

	_, out, err := svc.ListConflicts(context.Background(), nil, ListConflictsInput{SessionID: submitted.SessionID})
	require.NoError(t, err)
	assert.Empty(t, out.Conflicts)
}
