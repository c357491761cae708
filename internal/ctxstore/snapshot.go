package ctxstore

import "sort"

// Key is the semantic identity of a context entry. Namespace scopes a family
// of related keys (e.g. "deployment", "component"); conflicts only arise
// between entries sharing the full key, never across namespaces.
type Key struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
}

func (k Key) String() string {
	return k.Namespace + "/" + k.Name
}

// Entry is one fact contributed by one task.
type Entry struct {
	Key          Key      `json:"key"`
	Value        Value    `json:"value"`
	SourceTask   string   `json:"sourceTask"`
	Confidence   float64  `json:"confidence"`
	EvidenceRefs []string `json:"evidenceRefs,omitempty"`
}

// Collision is an unclassified merge clash: an incoming entry landed on a key
// that already holds a different value. Classification and resolution are the
// conflict package's job; the store only reports the clash and keeps the
// prior value provisional.
type Collision struct {
	Key      Key
	Existing Entry
	Incoming Entry
}

// Snapshot is one immutable version of the merged context. New versions are
// produced by merging; prior versions are never mutated.
type Snapshot struct {
	version int
	phase   string // phase whose merge published this version; "" for the foundation
	entries map[string]Entry
}

// Version returns the snapshot's position in the version chain (0 = foundation).
func (s *Snapshot) Version() int { return s.version }

// Phase returns the name of the phase that published this snapshot.
func (s *Snapshot) Phase() string { return s.phase }

// Get returns the entry for key, if present.
func (s *Snapshot) Get(key Key) (Entry, bool) {
	e, ok := s.entries[key.String()]
	return e, ok
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Entries returns all entries sorted by key for deterministic iteration.
func (s *Snapshot) Entries() []Entry {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k])
	}
	return out
}

// Namespace returns the entries under one namespace, sorted by key.
func (s *Snapshot) Namespace(ns string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Key.Namespace == ns {
			out = append(out, e)
		}
	}
	return out
}

// Rehydrate rebuilds a snapshot from its transported parts. Used by remote
// investigator hosts, which receive snapshots over the wire as entry lists.
func Rehydrate(version int, phase string, entries []Entry) *Snapshot {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Key.String()] = e
	}
	return &Snapshot{version: version, phase: phase, entries: m}
}

// clone returns a mutable copy of the snapshot's entry map.
func (s *Snapshot) clone() map[string]Entry {
	m := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		m[k] = v
	}
	return m
}
