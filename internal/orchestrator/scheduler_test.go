package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/inquest/internal/config"
)

func phase(name string, deps ...string) config.PhaseSpec {
	return config.PhaseSpec{
		Name:      name,
		DependsOn: deps,
		Tasks:     []config.TaskSpec{{Name: name + "-task", Agent: "stub"}},
	}
}

func TestSchedulerOrderRespectsDependencies(t *testing.T) {
	sched, err := NewScheduler([]config.PhaseSpec{
		phase("synthesize", "deepen", "verify"),
		phase("deepen", "survey"),
		phase("verify", "survey"),
		phase("survey"),
	})
	require.NoError(t, err)

	order := sched.Order()
	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["survey"], pos["deepen"])
	assert.Less(t, pos["survey"], pos["verify"])
	assert.Less(t, pos["deepen"], pos["synthesize"])
	assert.Less(t, pos["verify"], pos["synthesize"])
}

func TestSchedulerRejectsCycle(t *testing.T) {
	_, err := NewScheduler([]config.PhaseSpec{
		phase("a", "b"),
		phase("b", "a"),
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestSchedulerRefusesOutOfOrderStart(t *testing.T) {
	sched, err := NewScheduler([]config.PhaseSpec{
		phase("survey"),
		phase("deepen", "survey"),
	})
	require.NoError(t, err)

	// Starting the dependent phase before its dependency completed is a
	// hard error, and the phase lands in Blocked.
	err = sched.Start("deepen")
	require.ErrorIs(t, err, ErrPhaseOrderViolation)
	assert.Equal(t, PhaseBlocked, sched.Status("deepen"))

	require.NoError(t, sched.Start("survey"))
	require.NoError(t, sched.Complete("survey"))
	assert.Equal(t, PhaseCompleted, sched.Status("survey"))
}

func TestSchedulerTransitionGuards(t *testing.T) {
	sched, err := NewScheduler([]config.PhaseSpec{phase("survey")})
	require.NoError(t, err)

	assert.Error(t, sched.Complete("survey"), "cannot complete a pending phase")
	require.NoError(t, sched.Start("survey"))
	assert.Error(t, sched.Start("survey"), "cannot start a running phase twice")
	require.NoError(t, sched.Fail("survey"))
	assert.Equal(t, PhaseFailed, sched.Status("survey"))
}
