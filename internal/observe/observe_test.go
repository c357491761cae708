package observe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/inquest/internal/conflict"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/registry"
)

func TestReporterEmitAndSubscribe(t *testing.T) {
	r := NewReporter()
	r.Emit(Event{Kind: EventPhase, Phase: "survey", Status: "running"})
	r.Close()

	var got []Event
	for e := range r.Subscribe() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, EventPhase, got[0].Kind)
	assert.False(t, got[0].At.IsZero(), "Emit should stamp the event time")
}

func TestReporterDropsWhenFull(t *testing.T) {
	r := NewReporter()
	for i := 0; i < 300; i++ {
		r.Emit(Event{Kind: EventTask, Task: "t"})
	}
	// Full buffer plus drops must never block the emitter.
	r.Close()
	n := 0
	for range r.Subscribe() {
		n++
	}
	assert.Equal(t, 256, n)
}

func TestFormatEvent(t *testing.T) {
	cases := []struct {
		event Event
		want  string
	}{
		{Event{Kind: EventPhase, Phase: "survey", Status: "running"}, "  ● phase survey: running"},
		{Event{Kind: EventTask, Phase: "survey", Task: "probe", Status: "done"}, "    survey/probe: done"},
		{Event{Kind: EventTask, Phase: "survey", Task: "probe", Status: "degraded", Message: "timeout"}, "    survey/probe: degraded (timeout)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatEvent(tc.event))
	}
}

func newSession(t *testing.T) (*Monitor, *View, *registry.Lease, *ctxstore.Store) {
	t.Helper()
	reg := registry.New(registry.NewMemLocker(), time.Minute, zap.NewNop())
	lease, err := reg.Acquire(context.Background(), "job-1")
	require.NoError(t, err)

	store := ctxstore.New()
	mon := NewMonitor(reg)
	view := mon.StartSession(lease.SessionID(), "job-1", store)
	return mon, view, lease, store
}

func TestMonitorStatus(t *testing.T) {
	mon, view, lease, _ := newSession(t)
	defer lease.Release(context.Background(), registry.StatusCompleted)

	view.SetPhase("survey", "running")
	view.SetTask("survey", "probe", "running")
	view.SetTask("survey", "probe", "done")
	view.SetPhase("survey", "completed")

	report, err := mon.Status(lease.SessionID())
	require.NoError(t, err)
	require.Len(t, report.Phases, 1)
	assert.Equal(t, "completed", report.Phases[0].Status)
	assert.Equal(t, "done", report.Phases[0].Tasks["probe"])

	_, err = mon.Status("no-such-session")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
}

func TestMonitorContextFlow(t *testing.T) {
	mon, _, lease, store := newSession(t)
	defer lease.Release(context.Background(), registry.StatusCompleted)

	key := ctxstore.Key{Namespace: "svc", Name: "lang"}
	_, _, err := store.Merge([]ctxstore.Entry{{
		Key: key, Value: ctxstore.StringValue("go"), SourceTask: "probe", Confidence: 0.9,
	}})
	require.NoError(t, err)
	_, err = store.Publish("survey")
	require.NoError(t, err)

	flow, err := mon.ContextFlow(lease.SessionID())
	require.NoError(t, err)
	require.Len(t, flow.Versions, 2, "foundation plus one published snapshot")
	assert.Equal(t, "survey", flow.Versions[1].Phase)
	assert.Equal(t, 1, flow.Versions[1].Entries)
}

func TestMonitorConflicts(t *testing.T) {
	mon, view, lease, _ := newSession(t)
	defer lease.Release(context.Background(), registry.StatusCompleted)

	view.AddConflicts([]conflict.Conflict{{
		Key:            ctxstore.Key{Namespace: "svc", Name: "replicas"},
		Classification: conflict.ClassValueDisagreement,
		Status:         conflict.StatusEscalated,
	}})

	cs, err := mon.Conflicts(lease.SessionID())
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, conflict.StatusEscalated, cs[0].Status)
}
