package evidence

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Decision is the outcome of validating one claim against the ledger.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
	// RequiresAlternative means the claim itself is unsupported but a
	// nearby approved claim in the same namespace can stand in for it.
	RequiresAlternative Decision = "requires-alternative"
)

// GateResult is the answer of the validation gate for one claim.
type GateResult struct {
	Decision    Decision
	Reason      string
	Alternative string   // suggested claim when Decision is RequiresAlternative
	Supporting  []string // IDs of the records that approved the claim
}

// Gate is the final check rejecting claims that lack sufficient evidence.
// A claim is approved only by implementation or pattern evidence; deployment
// evidence speaks to current availability, not capability, so it never
// approves on its own. That split is what lets artifacts describe features
// that exist in source but are not yet deployed while still rejecting pure
// invention.
type Gate struct {
	ledger Ledger
}

// NewGate creates a Gate over the given ledger.
func NewGate(l Ledger) *Gate {
	return &Gate{ledger: l}
}

// Validate checks one claim. namespace scopes the alternative search when the
// claim is rejected.
func (g *Gate) Validate(ctx context.Context, claim, namespace string) (GateResult, error) {
	recs, err := g.ledger.ByClaim(ctx, claim)
	if err != nil {
		return GateResult{}, fmt.Errorf("gate: lookup %q: %w", claim, err)
	}

	var supporting []string
	for _, r := range recs {
		if r.Kind.ApprovesCapability() {
			supporting = append(supporting, r.ID)
		}
	}
	if len(supporting) > 0 {
		return GateResult{
			Decision:   Approved,
			Reason:     fmt.Sprintf("%d capability evidence record(s)", len(supporting)),
			Supporting: supporting,
		}, nil
	}

	reason := "no evidence on record"
	if len(recs) > 0 {
		reason = fmt.Sprintf("only non-capability evidence (%s)", kindList(recs))
	}

	alt, err := g.nearestApproved(ctx, claim, namespace)
	if err != nil {
		return GateResult{}, err
	}
	if alt != "" {
		return GateResult{
			Decision:    RequiresAlternative,
			Reason:      reason,
			Alternative: alt,
		}, nil
	}
	return GateResult{Decision: Rejected, Reason: reason}, nil
}

// nearestApproved searches the namespace for the approved claim most similar
// to the rejected one. Similarity is shared-token count; ties break
// lexicographically so the suggestion is deterministic.
func (g *Gate) nearestApproved(ctx context.Context, claim, namespace string) (string, error) {
	recs, err := g.ledger.ByNamespace(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("gate: namespace scan %q: %w", namespace, err)
	}

	approved := make(map[string]bool)
	for _, r := range recs {
		if r.Claim != claim && r.Kind.ApprovesCapability() {
			approved[r.Claim] = true
		}
	}
	if len(approved) == 0 {
		return "", nil
	}

	candidates := make([]string, 0, len(approved))
	for c := range approved {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)

	want := tokenize(claim)
	best, bestScore := "", 0
	for _, c := range candidates {
		if score := overlap(want, tokenize(c)); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore == 0 {
		// Nothing related; fall back to the first approved claim in the
		// namespace rather than returning nothing at all.
		return candidates[0], nil
	}
	return best, nil
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		out[tok] = true
	}
	return out
}

func overlap(a, b map[string]bool) int {
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}

func kindList(recs []Record) string {
	seen := make(map[Kind]bool)
	var kinds []string
	for _, r := range recs {
		if !seen[r.Kind] {
			seen[r.Kind] = true
			kinds = append(kinds, string(r.Kind))
		}
	}
	sort.Strings(kinds)
	return strings.Join(kinds, ", ")
}
