package agent

import (
	"context"

	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
)

// Status is an investigator's completion signal.
type Status string

const (
	// StatusDone: the investigation finished normally.
	StatusDone Status = "done"
	// StatusDegraded: the investigation finished with partial findings the
	// caller may accept at reduced confidence.
	StatusDegraded Status = "degraded"
	// StatusFailed: the investigation produced nothing usable.
	StatusFailed Status = "failed"
)

// Result is everything an investigator reports back to the core.
type Result struct {
	Findings   []ctxstore.Entry  `json:"findings"`
	Evidence   []evidence.Record `json:"evidence"`
	Confidence float64           `json:"confidence"`
	Status     Status            `json:"status"`
}

// Adapter is the uniform contract every investigator implementation
// satisfies. The core is agnostic to what an adapter investigates (a ticket
// API, a documentation index, a code-diff analyzer, a live cluster) as long
// as it turns a context snapshot into findings with evidence. Task timeouts
// arrive as the context deadline.
type Adapter interface {
	// Kind identifies the investigator implementation (e.g. "ticket-miner").
	Kind() string

	// Run investigates against the given context snapshot.
	Run(ctx context.Context, snap *ctxstore.Snapshot) (*Result, error)
}
