package evidence

import (
	"context"
	"io"
	"time"
)

// Kind classifies what a piece of evidence proves.
type Kind string

const (
	// KindImplementation proves a capability exists in source.
	KindImplementation Kind = "implementation"
	// KindDeployment proves current availability in an environment. It
	// augments context but never independently approves a capability claim.
	KindDeployment Kind = "deployment"
	// KindDocumentation is descriptive material about the subject.
	KindDocumentation Kind = "documentation"
	// KindPattern proves a capability by an established, verified pattern.
	KindPattern Kind = "pattern"
)

// ApprovesCapability reports whether this kind alone can approve a claim
// about what the system can do. Deployment and documentation evidence only
// speak to availability and description.
func (k Kind) ApprovesCapability() bool {
	return k == KindImplementation || k == KindPattern
}

// Weight is the kind's contribution to evidence strength when competing
// entries are compared.
func (k Kind) Weight() int {
	if k.ApprovesCapability() {
		return 2
	}
	return 1
}

// Record links one claim to one piece of supporting provenance.
type Record struct {
	ID          string    `json:"id"`
	Claim       string    `json:"claim"`
	Namespace   string    `json:"namespace"`
	SourceTask  string    `json:"sourceTask"`
	ArtifactRef string    `json:"artifactRef"`
	Kind        Kind      `json:"kind"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Ledger is the append-only evidence store backing the validation gate.
// Implementations: MemLedger (default), KuzuLedger (persistent, cgo).
type Ledger interface {
	io.Closer

	// Append stores a record, assigning an ID when the record has none,
	// and returns the ID. Records are never updated or deleted.
	Append(ctx context.Context, rec Record) (string, error)

	// Get returns the record with the given ID, or nil if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// ByClaim returns all records supporting a claim, oldest first.
	ByClaim(ctx context.Context, claim string) ([]Record, error)

	// ByNamespace returns all records in a key-namespace, oldest first.
	ByNamespace(ctx context.Context, namespace string) ([]Record, error)

	// ByTask returns all records contributed by a task, oldest first.
	ByTask(ctx context.Context, task string) ([]Record, error)

	// Len returns the total number of records.
	Len(ctx context.Context) (int, error)
}

// Strength sums the kind weights of the referenced records. References that
// do not resolve contribute nothing.
func Strength(ctx context.Context, l Ledger, refs []string) (int, error) {
	total := 0
	for _, id := range refs {
		rec, err := l.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if rec != nil {
			total += rec.Kind.Weight()
		}
	}
	return total, nil
}
