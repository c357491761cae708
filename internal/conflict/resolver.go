package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
)

// Resolver classifies and resolves the conflicts surfaced by a merge.
// Resolution is deterministic: identical competing entries, source-priority
// table, and evidence strengths always produce the same outcome.
type Resolver struct {
	cfg    Config
	ledger evidence.Ledger
	logger *zap.Logger
}

// NewResolver creates a Resolver. ledger is consulted to weigh competing
// evidence; logger may be nil.
func NewResolver(cfg Config, ledger evidence.Ledger, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, ledger: ledger, logger: logger}
}

// Process handles one merge: it first canonicalizes semantic aliases found in
// the provisional snapshot, then resolves the key collisions reported by the
// store. It returns the mutations to apply to the pending snapshot and every
// conflict with its final status. Escalated conflicts leave the prior value
// provisional and are annotated downstream; they only block the session when
// the key is critical (the scheduler decides that).
func (r *Resolver) Process(ctx context.Context, snap *ctxstore.Snapshot, collisions []ctxstore.Collision) ([]ctxstore.Mutation, []Conflict, error) {
	var muts []ctxstore.Mutation
	var conflicts []Conflict

	aliasMuts, aliasConflicts, err := r.canonicalize(ctx, snap)
	if err != nil {
		return nil, nil, err
	}
	muts = append(muts, aliasMuts...)
	conflicts = append(conflicts, aliasConflicts...)

	for _, col := range collisions {
		m, c, err := r.resolveCollision(ctx, col)
		if err != nil {
			return nil, nil, err
		}
		if m != nil {
			muts = append(muts, *m)
		}
		conflicts = append(conflicts, c)
	}

	for _, c := range conflicts {
		r.logger.Info("conflict processed",
			zap.String("key", c.Key.String()),
			zap.String("class", string(c.Classification)),
			zap.String("status", string(c.Status)),
			zap.String("rationale", c.Rationale))
	}
	return muts, conflicts, nil
}

// ---------------------------------------------------------------------------
// Semantic aliases
// ---------------------------------------------------------------------------

// canonicalize scans a snapshot for keys in the same namespace whose names
// normalize to the same label (case/separator variants). Each alias group is
// rewritten onto the canonical label: the longest name, lexicographic on
// ties. Agreeing values merge losslessly; disagreeing values fall through to
// collision resolution on the canonical key.
func (r *Resolver) canonicalize(ctx context.Context, snap *ctxstore.Snapshot) ([]ctxstore.Mutation, []Conflict, error) {
	groups := make(map[string][]ctxstore.Entry) // namespace+normalized name -> entries
	for _, e := range snap.Entries() {
		id := e.Key.Namespace + "\x00" + normalizeLabel(e.Key.Name)
		groups[id] = append(groups[id], e)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var muts []ctxstore.Mutation
	var conflicts []Conflict

	for _, id := range ids {
		entries := groups[id]
		if len(entries) < 2 {
			continue
		}

		canonical := canonicalName(entries)
		canonicalKey := ctxstore.Key{Namespace: entries[0].Key.Namespace, Name: canonical}

		// Fold every aliased entry onto the canonical key, pairwise.
		merged := entries[0]
		merged.Key = canonicalKey
		for _, other := range entries[1:] {
			other.Key = canonicalKey
			if merged.Value.Equal(other.Value) {
				merged = poolEntries(merged, other)
				continue
			}
			// Values disagree once the labels align: resolve the pair the
			// same way a direct collision would be.
			m, c, err := r.resolveCollision(ctx, ctxstore.Collision{
				Key:      canonicalKey,
				Existing: merged,
				Incoming: other,
			})
			if err != nil {
				return nil, nil, err
			}
			if m != nil {
				merged = m.Set
			}
			conflicts = append(conflicts, c)
		}

		for _, e := range entries {
			if e.Key.Name == canonical && e.Key.Namespace == canonicalKey.Namespace {
				continue
			}
			alias := e.Key
			muts = append(muts, ctxstore.Mutation{
				Set:        merged,
				Remove:     &alias,
				ResolvedBy: "resolver/semantic-alias",
				Reason:     fmt.Sprintf("canonicalized %s to %s", alias, canonicalKey),
			})
		}

		conflicts = append(conflicts, Conflict{
			Key:            canonicalKey,
			Classification: ClassSemanticAlias,
			Status:         StatusResolved,
			Entries:        entries,
			Winner:         &merged,
			Rationale:      fmt.Sprintf("%d label variants folded into %q", len(entries), canonical),
			Critical:       r.cfg.critical(canonicalKey),
		})
	}
	return muts, conflicts, nil
}

// normalizeLabel lowercases a key name and strips separator characters so
// "payment-service", "PaymentService" and "payment_service" compare equal.
func normalizeLabel(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if c == '-' || c == '_' || c == '.' || c == ' ' {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// canonicalName picks the longest (most specific) raw name in an alias
// group, breaking ties lexicographically.
func canonicalName(entries []ctxstore.Entry) string {
	best := entries[0].Key.Name
	for _, e := range entries[1:] {
		n := e.Key.Name
		if len(n) > len(best) || (len(n) == len(best) && n < best) {
			best = n
		}
	}
	return best
}

func poolEntries(a, b ctxstore.Entry) ctxstore.Entry {
	out := a
	if b.Confidence > a.Confidence {
		out = b
		out.Key = a.Key
	}
	seen := make(map[string]bool)
	var refs []string
	for _, ref := range append(append([]string{}, a.EvidenceRefs...), b.EvidenceRefs...) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	out.EvidenceRefs = refs
	return out
}

// ---------------------------------------------------------------------------
// Collisions
// ---------------------------------------------------------------------------

// resolveCollision classifies one collision and resolves it. Returns the
// mutation to apply (nil when the prior value stands) plus the conflict.
func (r *Resolver) resolveCollision(ctx context.Context, col ctxstore.Collision) (*ctxstore.Mutation, Conflict, error) {
	if col.Existing.Value.Kind != col.Incoming.Value.Kind {
		return r.resolveTypeMismatch(col)
	}
	return r.resolveValueDisagreement(ctx, col)
}

// resolveTypeMismatch applies source priority: the more authoritative task's
// value wins and the loser is flagged for a retry that will see the corrected
// value in its next input snapshot. With no priority configured for the
// namespace the prior value is retained.
func (r *Resolver) resolveTypeMismatch(col ctxstore.Collision) (*ctxstore.Mutation, Conflict, error) {
	c := Conflict{
		Key:            col.Key,
		Classification: ClassTypeMismatch,
		Status:         StatusResolved,
		Entries:        []ctxstore.Entry{col.Existing, col.Incoming},
		Critical:       r.cfg.critical(col.Key),
	}

	existingRank := r.cfg.rank(col.Key.Namespace, col.Existing.SourceTask)
	incomingRank := r.cfg.rank(col.Key.Namespace, col.Incoming.SourceTask)

	if existingRank < 0 && incomingRank < 0 {
		winner := col.Existing
		c.Winner = &winner
		c.Rationale = fmt.Sprintf("no source priority configured for namespace %q; prior value retained", col.Key.Namespace)
		return nil, c, nil
	}

	// Lower rank is more authoritative; an unranked source loses to any
	// ranked one.
	winner, loser := col.Existing, col.Incoming
	winnerRank, loserRank := existingRank, incomingRank
	if existingRank < 0 || (incomingRank >= 0 && incomingRank < existingRank) {
		winner, loser = col.Incoming, col.Existing
		winnerRank, loserRank = incomingRank, existingRank
	}
	c.Winner = &winner
	c.RetryTask = loser.SourceTask
	c.Rationale = fmt.Sprintf("source priority: %s (rank %d) over %s (rank %d)",
		winner.SourceTask, winnerRank, loser.SourceTask, loserRank)

	if winner.SourceTask == col.Existing.SourceTask && winner.Value.Equal(col.Existing.Value) {
		return nil, c, nil // prior value already in place
	}
	return &ctxstore.Mutation{
		Set:        winner,
		ResolvedBy: "resolver/source-priority",
		Reason:     c.Rationale,
	}, c, nil
}

// resolveValueDisagreement weighs the competing entries' evidence. The
// stronger side wins; an exact tie escalates, leaving the prior value
// provisional and the conflict annotated in the final artifact.
func (r *Resolver) resolveValueDisagreement(ctx context.Context, col ctxstore.Collision) (*ctxstore.Mutation, Conflict, error) {
	c := Conflict{
		Key:            col.Key,
		Classification: ClassValueDisagreement,
		Entries:        []ctxstore.Entry{col.Existing, col.Incoming},
		Critical:       r.cfg.critical(col.Key),
	}

	existingStrength, err := evidence.Strength(ctx, r.ledger, col.Existing.EvidenceRefs)
	if err != nil {
		return nil, c, fmt.Errorf("resolver: weigh existing entry %s: %w", col.Key, err)
	}
	incomingStrength, err := evidence.Strength(ctx, r.ledger, col.Incoming.EvidenceRefs)
	if err != nil {
		return nil, c, fmt.Errorf("resolver: weigh incoming entry %s: %w", col.Key, err)
	}

	if existingStrength == incomingStrength {
		c.Status = StatusEscalated
		c.Rationale = fmt.Sprintf("evidence tie (%d vs %d); prior value %q kept provisionally",
			existingStrength, incomingStrength, col.Existing.Value.String())
		return nil, c, nil
	}

	c.Status = StatusResolved
	winner := col.Existing
	if incomingStrength > existingStrength {
		winner = col.Incoming
	}
	c.Winner = &winner
	c.Rationale = fmt.Sprintf("evidence strength %d (%d records) vs %d (%d records): %q wins",
		maxInt(existingStrength, incomingStrength),
		len(winner.EvidenceRefs),
		minInt(existingStrength, incomingStrength),
		len(loserOf(col, winner).EvidenceRefs),
		winner.Value.String())

	if winner.SourceTask == col.Existing.SourceTask && winner.Value.Equal(col.Existing.Value) {
		return nil, c, nil
	}
	return &ctxstore.Mutation{
		Set:        winner,
		ResolvedBy: "resolver/evidence-strength",
		Reason:     c.Rationale,
	}, c, nil
}

func loserOf(col ctxstore.Collision, winner ctxstore.Entry) ctxstore.Entry {
	if winner.SourceTask == col.Existing.SourceTask && winner.Value.Equal(col.Existing.Value) {
		return col.Incoming
	}
	return col.Existing
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
