package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
)

func seedLedger(t *testing.T, l evidence.Ledger, claim string, kinds ...evidence.Kind) []string {
	t.Helper()
	var ids []string
	for _, k := range kinds {
		id, err := l.Append(context.Background(), evidence.Record{
			Claim: claim, Namespace: "test", SourceTask: "seeder", Kind: k,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func strEntry(ns, name, val, task string, refs []string) ctxstore.Entry {
	return ctxstore.Entry{
		Key:          ctxstore.Key{Namespace: ns, Name: name},
		Value:        ctxstore.StringValue(val),
		SourceTask:   task,
		Confidence:   0.8,
		EvidenceRefs: refs,
	}
}

func TestResolve_ValueDisagreement_EvidenceStrengthWins(t *testing.T) {
	l := evidence.NewMemLedger()
	deploy := seedLedger(t, l, "deployed", evidence.KindDeployment)
	impl := seedLedger(t, l, "not deployed", evidence.KindImplementation, evidence.KindImplementation)

	r := NewResolver(Config{}, l, nil)

	existing := ctxstore.Entry{
		Key:          ctxstore.Key{Namespace: "deployment", Name: "deploymentStatus"},
		Value:        ctxstore.BoolValue(true),
		SourceTask:   "cluster-probe",
		EvidenceRefs: deploy,
	}
	incoming := existing
	incoming.Value = ctxstore.BoolValue(false)
	incoming.SourceTask = "diff-scan"
	incoming.EvidenceRefs = impl

	muts, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, ClassValueDisagreement, c.Classification)
	assert.Equal(t, StatusResolved, c.Status)
	require.NotNil(t, c.Winner)
	assert.False(t, c.Winner.Value.Bool, "two implementation records outweigh one deployment record")
	assert.Contains(t, c.Rationale, "evidence strength")

	require.Len(t, muts, 1)
	assert.Equal(t, "resolver/evidence-strength", muts[0].ResolvedBy)
	assert.False(t, muts[0].Set.Value.Bool)
}

func TestResolve_ValueDisagreement_Tie_Escalates(t *testing.T) {
	l := evidence.NewMemLedger()
	a := seedLedger(t, l, "a", evidence.KindImplementation)
	b := seedLedger(t, l, "b", evidence.KindImplementation)

	r := NewResolver(Config{}, l, nil)
	existing := strEntry("env", "region", "eu-west", "probe", a)
	incoming := strEntry("env", "region", "us-east", "miner", b)

	muts, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	assert.Empty(t, muts, "an escalated conflict must not rewrite the snapshot")
	require.Len(t, conflicts, 1)
	assert.Equal(t, StatusEscalated, conflicts[0].Status)
	assert.Nil(t, conflicts[0].Winner)
	assert.Contains(t, conflicts[0].Rationale, "tie")
}

func TestResolve_TypeMismatch_SourcePriority_FlagsRetry(t *testing.T) {
	cfg := Config{SourcePriority: map[string][]string{
		"deployment": {"foundation", "cluster-probe"},
	}}
	r := NewResolver(cfg, evidence.NewMemLedger(), nil)

	existing := ctxstore.Entry{
		Key:        ctxstore.Key{Namespace: "deployment", Name: "targetVersion"},
		Value:      ctxstore.StringValue("2.15.0"),
		SourceTask: "foundation",
	}
	incoming := ctxstore.Entry{
		Key:        existing.Key,
		Value:      ctxstore.NumberValue(2.15),
		SourceTask: "cluster-probe",
	}

	muts, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, ClassTypeMismatch, c.Classification)
	assert.Equal(t, StatusResolved, c.Status)
	require.NotNil(t, c.Winner)
	assert.Equal(t, "foundation", c.Winner.SourceTask)
	assert.Equal(t, "cluster-probe", c.RetryTask, "losing task should be flagged for retry")
	assert.Empty(t, muts, "prior value already holds the winner")
}

func TestResolve_TypeMismatch_UnrankedSourceLoses(t *testing.T) {
	cfg := Config{SourcePriority: map[string][]string{
		"deployment": {"cluster-probe"},
	}}
	r := NewResolver(cfg, evidence.NewMemLedger(), nil)

	// The prior value came from a task the priority table does not know;
	// the ranked incoming task overwrites it.
	existing := strEntry("deployment", "targetVersion", "2.15.0", "doc-scan", nil)
	incoming := ctxstore.Entry{Key: existing.Key, Value: ctxstore.NumberValue(2.15), SourceTask: "cluster-probe"}

	muts, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.NotNil(t, conflicts[0].Winner)
	assert.Equal(t, "cluster-probe", conflicts[0].Winner.SourceTask)
	assert.Equal(t, "doc-scan", conflicts[0].RetryTask)
	require.Len(t, muts, 1)
	assert.Equal(t, "resolver/source-priority", muts[0].ResolvedBy)
}

func TestResolve_TypeMismatch_NoPriority_PriorRetained(t *testing.T) {
	r := NewResolver(Config{}, evidence.NewMemLedger(), nil)
	existing := strEntry("misc", "k", "v1", "t1", nil)
	incoming := ctxstore.Entry{Key: existing.Key, Value: ctxstore.NumberValue(1), SourceTask: "t2"}

	muts, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	assert.Empty(t, muts)
	require.Len(t, conflicts, 1)
	assert.Equal(t, StatusResolved, conflicts[0].Status)
	assert.Contains(t, conflicts[0].Rationale, "no source priority")
	assert.Empty(t, conflicts[0].RetryTask)
}

func TestCanonicalize_AliasFolded_NoConfidencePenalty(t *testing.T) {
	r := NewResolver(Config{}, evidence.NewMemLedger(), nil)

	snap := snapWith(t,
		strEntry("component", "payment-service", "owned-by-payments", "doc-search", []string{"e1"}),
		strEntry("component", "PaymentService", "owned-by-payments", "ticket-miner", []string{"e2"}),
	)

	muts, conflicts, err := r.Process(context.Background(), snap, nil)
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, ClassSemanticAlias, c.Classification)
	assert.Equal(t, StatusResolved, c.Status)
	assert.Equal(t, "payment-service", c.Key.Name, "longest label is canonical")

	require.Len(t, muts, 1)
	require.NotNil(t, muts[0].Remove)
	assert.Equal(t, "PaymentService", muts[0].Remove.Name)
	assert.Equal(t, 0.8, muts[0].Set.Confidence, "alias resolution carries no confidence penalty")
	assert.ElementsMatch(t, []string{"e1", "e2"}, muts[0].Set.EvidenceRefs)
}

func TestCanonicalize_SameNameDifferentNamespace_NotAliased(t *testing.T) {
	r := NewResolver(Config{}, evidence.NewMemLedger(), nil)
	snap := snapWith(t,
		strEntry("deployment", "targetVersion", "2.15", "t1", nil),
		strEntry("environment", "targetVersion", "2.14", "t2", nil),
	)
	muts, conflicts, err := r.Process(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Empty(t, muts)
	assert.Empty(t, conflicts, "namespaces keep same-named keys apart")
}

func TestResolve_Deterministic(t *testing.T) {
	l := evidence.NewMemLedger()
	a := seedLedger(t, l, "a", evidence.KindImplementation, evidence.KindPattern)
	b := seedLedger(t, l, "b", evidence.KindDeployment)

	collision := ctxstore.Collision{
		Key:      ctxstore.Key{Namespace: "env", Name: "mode"},
		Existing: strEntry("env", "mode", "batch", "t1", b),
		Incoming: strEntry("env", "mode", "stream", "t2", a),
	}

	var first []Conflict
	for i := 0; i < 5; i++ {
		r := NewResolver(Config{}, l, nil)
		_, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{collision})
		require.NoError(t, err)
		if i == 0 {
			first = conflicts
			continue
		}
		assert.Equal(t, first, conflicts, "identical inputs must resolve identically")
	}
	require.NotNil(t, first[0].Winner)
	assert.Equal(t, "stream", first[0].Winner.Value.Str)
}

func TestCriticalKey_Marked(t *testing.T) {
	l := evidence.NewMemLedger()
	cfg := Config{CriticalKeys: []string{"deployment/deploymentStatus"}}
	r := NewResolver(cfg, l, nil)

	existing := strEntry("deployment", "deploymentStatus", "live", "t1", nil)
	incoming := strEntry("deployment", "deploymentStatus", "staged", "t2", nil)

	_, conflicts, err := r.Process(context.Background(), snapWith(t), []ctxstore.Collision{
		{Key: existing.Key, Existing: existing, Incoming: incoming},
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].Critical)
	assert.Equal(t, StatusEscalated, conflicts[0].Status, "no evidence either side is a tie")
}

// snapWith builds a published snapshot containing the given entries.
func snapWith(t *testing.T, entries ...ctxstore.Entry) *ctxstore.Snapshot {
	t.Helper()
	s := ctxstore.New()
	_, collisions, err := s.Merge(entries)
	require.NoError(t, err)
	require.Empty(t, collisions, "test fixture entries must not collide")
	snap, err := s.Publish("fixture")
	require.NoError(t, err)
	return snap
}
