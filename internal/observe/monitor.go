package observe

import (
	"sync"

	"github.com/dusk-indust/inquest/internal/conflict"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/registry"
)

// Monitor is the pull-based observability surface. The scheduler pushes
// state into per-session views; external consumers query them without any
// write capability into execution.
type Monitor struct {
	reg *registry.Registry

	mu    sync.RWMutex
	views map[string]*View
}

// NewMonitor creates a Monitor over the given session registry.
func NewMonitor(reg *registry.Registry) *Monitor {
	return &Monitor{reg: reg, views: make(map[string]*View)}
}

// StartSession creates the view for a new session.
func (m *Monitor) StartSession(sessionID, jobKey string, store *ctxstore.Store) *View {
	v := &View{sessionID: sessionID, jobKey: jobKey, store: store}
	m.mu.Lock()
	m.views[sessionID] = v
	m.mu.Unlock()
	return v
}

func (m *Monitor) view(sessionID string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[sessionID]
	if !ok {
		return nil, registry.ErrUnknownSession
	}
	return v, nil
}

// StatusReport answers "where is this session right now".
type StatusReport struct {
	Session    registry.Session
	Phases     []PhaseReport
	HaltReason string
}

// PhaseReport is one phase's progress.
type PhaseReport struct {
	Name   string
	Status string
	Tasks  map[string]string // task name -> status
}

// FlowReport answers "what did each phase see": the snapshot chain plus the
// resolution audit trail.
type FlowReport struct {
	Versions  []VersionReport
	Mutations []ctxstore.MutationRecord
}

// VersionReport summarizes one published snapshot.
type VersionReport struct {
	Version int
	Phase   string
	Entries int
}

// Status returns the session's lifecycle state and phase progress.
func (m *Monitor) Status(sessionID string) (StatusReport, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return StatusReport{}, err
	}
	session, err := m.reg.Lookup(sessionID)
	if err != nil {
		return StatusReport{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	report := StatusReport{Session: session, HaltReason: v.haltReason}
	for _, p := range v.phases {
		tasks := make(map[string]string, len(p.Tasks))
		for k, s := range p.Tasks {
			tasks[k] = s
		}
		report.Phases = append(report.Phases, PhaseReport{Name: p.Name, Status: p.Status, Tasks: tasks})
	}
	return report, nil
}

// ContextFlow returns the session's snapshot version chain and mutation log.
func (m *Monitor) ContextFlow(sessionID string) (FlowReport, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return FlowReport{}, err
	}
	var report FlowReport
	for _, snap := range v.store.Versions() {
		report.Versions = append(report.Versions, VersionReport{
			Version: snap.Version(),
			Phase:   snap.Phase(),
			Entries: snap.Len(),
		})
	}
	report.Mutations = v.store.Mutations()
	return report, nil
}

// Conflicts returns every conflict the session has processed so far.
func (m *Monitor) Conflicts(sessionID string) ([]conflict.Conflict, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]conflict.Conflict, len(v.conflicts))
	copy(out, v.conflicts)
	return out, nil
}

// View is the write side handed to the scheduler for one session. Only the
// orchestration core holds a *View; queries go through the Monitor.
type View struct {
	sessionID string
	jobKey    string
	store     *ctxstore.Store

	mu         sync.RWMutex
	phases     []PhaseReport
	conflicts  []conflict.Conflict
	haltReason string
}

// SetPhase records a phase status transition, appending the phase on first
// sight.
func (v *View) SetPhase(name, status string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.phases {
		if v.phases[i].Name == name {
			v.phases[i].Status = status
			return
		}
	}
	v.phases = append(v.phases, PhaseReport{Name: name, Status: status, Tasks: make(map[string]string)})
}

// SetTask records a task status within a phase.
func (v *View) SetTask(phase, task, status string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.phases {
		if v.phases[i].Name == phase {
			if v.phases[i].Tasks == nil {
				v.phases[i].Tasks = make(map[string]string)
			}
			v.phases[i].Tasks[task] = status
			return
		}
	}
}

// AddConflicts appends processed conflicts.
func (v *View) AddConflicts(cs []conflict.Conflict) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conflicts = append(v.conflicts, cs...)
}

// SetHaltReason records the structured halt reason for a halted session.
func (v *View) SetHaltReason(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.haltReason = reason
}
