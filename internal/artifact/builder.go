package artifact

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/inquest/internal/conflict"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
	"github.com/dusk-indust/inquest/internal/score"
)

// Builder constructs the final artifact from a published snapshot. Every
// entry must pass the evidence gate before its claim is included: rejected
// claims are dropped, claims with only non-capability evidence are replaced
// by the gate's suggested alternative and annotated.
type Builder struct {
	ledger  evidence.Ledger
	gate    *evidence.Gate
	scorers []score.Scorer
	logger  *zap.Logger
}

// NewBuilder creates a Builder with the default rule-based scorers.
func NewBuilder(ledger evidence.Ledger, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		ledger:  ledger,
		gate:    evidence.NewGate(ledger),
		scorers: []score.Scorer{score.Complexity{}, score.Priority{}},
		logger:  logger,
	}
}

// Build validates every entry of the final snapshot through the gate and
// assembles the artifact. conflicts holds every conflict the session
// processed; escalated ones become caveats. degraded names the tasks that
// finished degraded.
func (b *Builder) Build(ctx context.Context, sessionID, jobKey string, snap *ctxstore.Snapshot, conflicts []conflict.Conflict, degraded []string) (*Artifact, error) {
	art := &Artifact{
		SessionID:   sessionID,
		JobKey:      jobKey,
		GeneratedAt: time.Now().UTC(),
	}

	for _, entry := range snap.Entries() {
		claim, err := b.claimFor(ctx, entry)
		if err != nil {
			return nil, err
		}
		gr, err := b.gate.Validate(ctx, claim, entry.Key.Namespace)
		if err != nil {
			return nil, err
		}

		switch gr.Decision {
		case evidence.Approved:
			art.Claims = append(art.Claims, Claim{
				Key:        entry.Key,
				Statement:  claim,
				Value:      entry.Value,
				Confidence: entry.Confidence,
				Evidence:   gr.Supporting,
				SourceTask: entry.SourceTask,
			})

		case evidence.RequiresAlternative:
			art.Claims = append(art.Claims, Claim{
				Key:         entry.Key,
				Statement:   gr.Alternative,
				Value:       entry.Value,
				Confidence:  entry.Confidence,
				SourceTask:  entry.SourceTask,
				Substituted: true,
				Caveat:      fmt.Sprintf("original claim %q not independently supported: %s", claim, gr.Reason),
			})

		case evidence.Rejected:
			// Never include a rejected claim; drop the entry.
			b.logger.Warn("claim rejected at artifact construction",
				zap.String("key", entry.Key.String()),
				zap.String("claim", claim),
				zap.String("reason", gr.Reason))
		}
	}

	for _, c := range conflicts {
		if c.Status == conflict.StatusEscalated {
			art.Escalations = append(art.Escalations, c)
			art.Caveats = append(art.Caveats, fmt.Sprintf("unresolved conflict on %s: %s", c.Key.String(), c.Rationale))
		}
	}
	for _, task := range degraded {
		art.Caveats = append(art.Caveats, fmt.Sprintf("task %s degraded after retry; its findings are absent", task))
	}

	for _, s := range b.scorers {
		art.Assessments = append(art.Assessments, s.Score(snap))
	}
	return art, nil
}

// claimFor derives the claim statement for an entry. An entry with evidence
// references inherits the claim its records were appended under; one without
// falls back to a key=value statement, which the gate will not approve.
func (b *Builder) claimFor(ctx context.Context, entry ctxstore.Entry) (string, error) {
	for _, id := range entry.EvidenceRefs {
		rec, err := b.ledger.Get(ctx, id)
		if err != nil {
			return "", fmt.Errorf("artifact: resolve evidence %s: %w", id, err)
		}
		if rec != nil {
			return rec.Claim, nil
		}
	}
	return fmt.Sprintf("%s=%s", entry.Key.String(), entry.Value.String()), nil
}
