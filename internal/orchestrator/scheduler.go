package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dusk-indust/inquest/internal/config"
)

// PhaseStatus is the lifecycle state of one phase within a session.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseBlocked   PhaseStatus = "blocked"
	PhaseFailed    PhaseStatus = "failed"
)

// ErrPhaseOrderViolation reports an attempt to start a phase before every
// phase it depends on has completed. This is a configuration or programming
// error and is never bypassed.
var ErrPhaseOrderViolation = errors.New("scheduler: phase order violation")

// Scheduler holds the per-session phase state machine. Phases run strictly
// sequentially in topological order of the dependency DAG; the Scheduler is
// the authority on which phase may start next.
type Scheduler struct {
	mu     sync.Mutex
	phases map[string]*config.PhaseSpec
	status map[string]PhaseStatus
	order  []string
}

// NewScheduler builds a Scheduler from a validated phase plan and computes
// the execution order. Dependencies run before their dependents; among
// unordered peers, declaration order breaks ties so the plan is stable.
func NewScheduler(phases []config.PhaseSpec) (*Scheduler, error) {
	s := &Scheduler{
		phases: make(map[string]*config.PhaseSpec, len(phases)),
		status: make(map[string]PhaseStatus, len(phases)),
	}
	declared := make(map[string]int, len(phases))
	for i := range phases {
		p := &phases[i]
		if _, dup := s.phases[p.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate phase %q", p.Name)
		}
		s.phases[p.Name] = p
		s.status[p.Name] = PhasePending
		declared[p.Name] = i
	}

	// Kahn's algorithm over the dependency edges.
	indegree := make(map[string]int, len(phases))
	for _, p := range phases {
		for _, dep := range p.DependsOn {
			if _, ok := s.phases[dep]; !ok {
				return nil, fmt.Errorf("scheduler: phase %q depends on unknown phase %q", p.Name, dep)
			}
			indegree[p.Name]++
		}
	}
	ready := make([]string, 0, len(phases))
	for _, p := range phases {
		if indegree[p.Name] == 0 {
			ready = append(ready, p.Name)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return declared[ready[i]] < declared[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		s.order = append(s.order, name)
		for _, p := range phases {
			for _, dep := range p.DependsOn {
				if dep == name {
					indegree[p.Name]--
					if indegree[p.Name] == 0 {
						ready = append(ready, p.Name)
					}
				}
			}
		}
	}
	if len(s.order) != len(phases) {
		return nil, fmt.Errorf("scheduler: dependency cycle in phase plan")
	}
	return s, nil
}

// Order returns the phase names in execution order.
func (s *Scheduler) Order() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Spec returns the phase definition by name.
func (s *Scheduler) Spec(name string) (*config.PhaseSpec, bool) {
	p, ok := s.phases[name]
	return p, ok
}

// Start transitions a phase to Running. It refuses, marking the phase
// Blocked and returning ErrPhaseOrderViolation, when any dependency has not
// completed.
func (s *Scheduler) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown phase %q", name)
	}
	if s.status[name] != PhasePending {
		return fmt.Errorf("scheduler: phase %q is %s, not pending", name, s.status[name])
	}
	for _, dep := range p.DependsOn {
		if s.status[dep] != PhaseCompleted {
			s.status[name] = PhaseBlocked
			return fmt.Errorf("%w: %q requires %q (currently %s)", ErrPhaseOrderViolation, name, dep, s.status[dep])
		}
	}
	s.status[name] = PhaseRunning
	return nil
}

// Complete marks a running phase completed.
func (s *Scheduler) Complete(name string) error {
	return s.transition(name, PhaseRunning, PhaseCompleted)
}

// Fail marks a running phase failed.
func (s *Scheduler) Fail(name string) error {
	return s.transition(name, PhaseRunning, PhaseFailed)
}

func (s *Scheduler) transition(name string, from, to PhaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[name] != from {
		return fmt.Errorf("scheduler: phase %q is %s, not %s", name, s.status[name], from)
	}
	s.status[name] = to
	return nil
}

// Status returns a phase's current state.
func (s *Scheduler) Status(name string) PhaseStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[name]
}
