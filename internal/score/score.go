package score

import (
	"fmt"

	"github.com/dusk-indust/inquest/internal/ctxstore"
)

// Decision is the fixed output contract of a strategic scoring function.
type Decision struct {
	Scorer    string  `json:"scorer"`
	Label     string  `json:"label"`
	Score     float64 `json:"score"` // 0..1
	Rationale string  `json:"rationale"`
}

// Scorer is an opaque strategic-analysis function over a context snapshot.
// Implementations may be rule-based or model-backed; the core only depends
// on this contract, so they can be swapped without touching the scheduler.
type Scorer interface {
	Name() string
	Score(snap *ctxstore.Snapshot) Decision
}

// Compile-time interface checks.
var (
	_ Scorer = (*Complexity)(nil)
	_ Scorer = (*Priority)(nil)
)

// Complexity is a rule-based scorer rating investigation breadth by how many
// namespaces the merged context spans.
type Complexity struct{}

func (Complexity) Name() string { return "complexity" }

func (Complexity) Score(snap *ctxstore.Snapshot) Decision {
	namespaces := make(map[string]bool)
	for _, e := range snap.Entries() {
		namespaces[e.Key.Namespace] = true
	}

	n := len(namespaces)
	label, s := "low", 0.25
	switch {
	case n >= 6:
		label, s = "high", 0.9
	case n >= 3:
		label, s = "medium", 0.6
	}
	return Decision{
		Scorer:    "complexity",
		Label:     label,
		Score:     s,
		Rationale: fmt.Sprintf("findings span %d namespace(s)", n),
	}
}

// Priority is a rule-based scorer rating how actionable the merged context
// is, from the mean confidence of its entries.
type Priority struct{}

func (Priority) Name() string { return "priority" }

func (Priority) Score(snap *ctxstore.Snapshot) Decision {
	entries := snap.Entries()
	if len(entries) == 0 {
		return Decision{Scorer: "priority", Label: "none", Score: 0, Rationale: "no findings"}
	}

	sum := 0.0
	for _, e := range entries {
		sum += e.Confidence
	}
	mean := sum / float64(len(entries))

	label := "low"
	switch {
	case mean >= 0.8:
		label = "high"
	case mean >= 0.5:
		label = "medium"
	}
	return Decision{
		Scorer:    "priority",
		Label:     label,
		Score:     mean,
		Rationale: fmt.Sprintf("mean confidence %.2f over %d finding(s)", mean, len(entries)),
	}
}
