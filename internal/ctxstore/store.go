package ctxstore

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mutation rewrites the pending snapshot as part of conflict resolution.
// Every applied mutation is recorded with its provenance so the resolution
// trail is auditable alongside the version chain.
type Mutation struct {
	// Set is the entry to write. Its key may differ from Remove when a
	// semantic alias is canonicalized.
	Set Entry

	// Remove, when non-nil, deletes the entry under this key (the
	// non-canonical alias) after Set is applied.
	Remove *Key

	// ResolvedBy names the component or policy that produced the mutation.
	ResolvedBy string

	// Reason is the human-readable rationale (e.g. evidence counts).
	Reason string
}

// MutationRecord is the audit log row for one applied Mutation.
type MutationRecord struct {
	Version    int // pending version the mutation applied to
	Key        Key
	Before     *Entry // nil when the key was previously absent
	After      Entry
	ResolvedBy string
	Reason     string
	AppliedAt  time.Time
}

// Store holds the version chain of merged context snapshots for one session.
// All writes are funneled through a single mutex, so concurrent task
// completions never race on a snapshot version; readers always observe fully
// published versions.
type Store struct {
	mu        sync.RWMutex
	versions  []*Snapshot
	byPhase   map[string]*Snapshot
	pending   *Snapshot // provisional next version; nil when nothing staged
	mutations []MutationRecord
	interim   map[string]Entry
}

// New creates a Store seeded with an empty foundation snapshot (version 0).
func New() *Store {
	return &Store{
		versions: []*Snapshot{{version: 0, entries: map[string]Entry{}}},
		byPhase:  make(map[string]*Snapshot),
		interim:  make(map[string]Entry),
	}
}

// Seed replaces the foundation snapshot's entries with the given seed data
// (e.g. the job's initial parameters). It must be called before any merge.
func (s *Store) Seed(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions) > 1 || s.pending != nil {
		return fmt.Errorf("ctxstore: seed after first merge")
	}
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Key.String()] = e
	}
	s.versions[0] = &Snapshot{version: 0, entries: m}
	return nil
}

// Latest returns the most recently published snapshot.
func (s *Store) Latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[len(s.versions)-1]
}

// AsOfPhase returns the snapshot published by the named phase's merge,
// point-in-time consistent: a partially merged phase is never visible.
func (s *Store) AsOfPhase(phase string) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byPhase[phase]
	return snap, ok
}

// Versions returns the full published version chain, foundation first.
func (s *Store) Versions() []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Snapshot, len(s.versions))
	copy(out, s.versions)
	return out
}

// Mutations returns the resolution audit log in application order.
func (s *Store) Mutations() []MutationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MutationRecord, len(s.mutations))
	copy(out, s.mutations)
	return out
}

// Merge stages the contributions of a completed phase against the latest
// published snapshot and returns the provisional result plus any collisions.
// Existing entries are never overwritten: a colliding key keeps its prior
// value until a resolution Mutation rewrites it. Two contributions to the
// same previously absent key collide with each other (first one in,
// deterministically by contribution order).
//
// The provisional snapshot is not visible to readers until Publish.
func (s *Store) Merge(contributions []Entry) (*Snapshot, []Collision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return nil, nil, fmt.Errorf("ctxstore: merge while a pending snapshot is unpublished")
	}

	base := s.versions[len(s.versions)-1]
	next := base.clone()
	var collisions []Collision

	for _, in := range contributions {
		k := in.Key.String()
		existing, ok := next[k]
		if !ok {
			next[k] = in
			continue
		}
		if existing.Value.Equal(in.Value) {
			// Same fact from two sources: keep the higher-confidence entry
			// and pool the evidence references.
			next[k] = mergeAgreeing(existing, in)
			continue
		}
		collisions = append(collisions, Collision{Key: in.Key, Existing: existing, Incoming: in})
	}

	s.pending = &Snapshot{version: base.version + 1, entries: next}

	sort.Slice(collisions, func(i, j int) bool {
		return collisions[i].Key.String() < collisions[j].Key.String()
	})
	return s.pending, collisions, nil
}

// Apply rewrites the pending snapshot with resolution mutations, logging each
// one. It fails if no merge is staged.
func (s *Store) Apply(muts []Mutation) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, fmt.Errorf("ctxstore: apply without a staged merge")
	}

	now := time.Now()
	for _, m := range muts {
		k := m.Set.Key.String()
		var before *Entry
		if prev, ok := s.pending.entries[k]; ok {
			b := prev
			before = &b
		}
		s.pending.entries[k] = m.Set
		if m.Remove != nil {
			delete(s.pending.entries, m.Remove.String())
		}
		s.mutations = append(s.mutations, MutationRecord{
			Version:    s.pending.version,
			Key:        m.Set.Key,
			Before:     before,
			After:      m.Set,
			ResolvedBy: m.ResolvedBy,
			Reason:     m.Reason,
			AppliedAt:  now,
		})
	}
	return s.pending, nil
}

// Publish commits the pending snapshot as the next version, binds it to the
// named phase, and clears interim entries. Callers must have resolved or
// explicitly escalated every conflict first; the store does not re-check.
func (s *Store) Publish(phase string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, fmt.Errorf("ctxstore: publish without a staged merge")
	}
	s.pending.phase = phase
	s.versions = append(s.versions, s.pending)
	s.byPhase[phase] = s.pending
	s.pending = nil
	s.interim = make(map[string]Entry)
	return s.versions[len(s.versions)-1], nil
}

// Discard drops the pending snapshot, if any. Used when a session's lease
// expires mid-merge so the half-merged state cannot leak into a later session.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.interim = make(map[string]Entry)
}

// PostInterim shares a partial finding with still-running peer tasks in the
// same phase. Interim entries never enter the version chain; they are cleared
// on Publish and Discard.
func (s *Store) PostInterim(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim[e.Key.String()] = e
}

// Interim is the non-blocking poll for a peer's partial finding.
func (s *Store) Interim(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.interim[key.String()]
	return e, ok
}

// mergeAgreeing combines two entries that carry the same value under the same
// key. Confidence takes the maximum; evidence references are pooled.
func mergeAgreeing(a, b Entry) Entry {
	out := a
	if b.Confidence > a.Confidence {
		out = b
	}
	seen := make(map[string]bool, len(a.EvidenceRefs)+len(b.EvidenceRefs))
	var refs []string
	for _, r := range append(append([]string{}, a.EvidenceRefs...), b.EvidenceRefs...) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	out.EvidenceRefs = refs
	return out
}
