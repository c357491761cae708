package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/inquest/internal/evidence"
)

// HaltError is the structured reason a session stopped instead of producing
// an artifact. Conditions enumerates exactly which minimum-evidence
// conditions were unmet.
type HaltError struct {
	Conditions []string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("orchestrator: session halted, minimum viable evidence unmet: %s",
		strings.Join(e.Conditions, "; "))
}

// CriticalConflictError halts a session when an escalated conflict lands on
// a key configuration marks critical.
type CriticalConflictError struct {
	Key       string
	Rationale string
}

func (e *CriticalConflictError) Error() string {
	return fmt.Sprintf("orchestrator: escalated conflict on critical key %s: %s", e.Key, e.Rationale)
}

// checkMinimumEvidence applies the halt policy after the first phase. The
// session halts only when every condition fails at once: no capability
// evidence exists, the phase produced no findings, and the total evidence
// across all first-phase tasks is below the configured minimum. Any single
// signal is enough to continue in degraded mode.
func checkMinimumEvidence(ctx context.Context, ledger evidence.Ledger, outcomes []TaskOutcome, minimum int) error {
	findings := 0
	for _, o := range outcomes {
		if o.Result != nil {
			findings += len(o.Result.Findings)
		}
	}

	total, err := ledger.Len(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: evidence count: %w", err)
	}

	capability := 0
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		for _, rec := range o.Result.Evidence {
			if rec.Kind.ApprovesCapability() {
				capability++
			}
		}
	}

	var unmet []string
	if capability == 0 {
		unmet = append(unmet, "no implementation or pattern evidence recorded")
	}
	if findings == 0 {
		unmet = append(unmet, "no descriptive findings contributed")
	}
	if total < minimum {
		unmet = append(unmet, fmt.Sprintf("related evidence records %d below minimum %d", total, minimum))
	}
	if len(unmet) == 3 {
		return &HaltError{Conditions: unmet}
	}
	return nil
}
