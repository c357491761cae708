package conflict

import (
	"github.com/dusk-indust/inquest/internal/ctxstore"
)

// Classification labels how two competing entries disagree.
type Classification string

const (
	// ClassSemanticAlias: two keys denote the same concept under different
	// labels (case/separator variants). Resolved by canonicalization with
	// no information loss and no confidence penalty.
	ClassSemanticAlias Classification = "semantic-alias"

	// ClassTypeMismatch: the values come from non-comparable domains.
	// Resolved by the per-namespace source-priority table.
	ClassTypeMismatch Classification = "type-mismatch"

	// ClassValueDisagreement: same domain, different value. Resolved by
	// evidence strength; ties escalate.
	ClassValueDisagreement Classification = "value-disagreement"
)

// Status is the resolution state of a conflict.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Conflict is one detected disagreement and its resolution outcome.
type Conflict struct {
	Key            ctxstore.Key
	Classification Classification
	Status         Status
	Entries        []ctxstore.Entry // competing entries, detection order
	Winner         *ctxstore.Entry  // nil while pending or escalated
	Rationale      string

	// RetryTask names the losing task to re-run with the corrected value
	// in its input snapshot. Set only for type mismatches.
	RetryTask string

	// Critical marks a conflict on a configured critical key; an escalated
	// critical conflict halts the session instead of degrading.
	Critical bool
}

// Config is the externally supplied resolution policy.
type Config struct {
	// SourcePriority maps a key namespace to source-task names in
	// authority order: the earlier a task appears, the more authoritative
	// its values are for that namespace.
	SourcePriority map[string][]string `yaml:"sourcePriority"`

	// CriticalKeys lists fully qualified keys ("namespace/name") whose
	// escalated conflicts halt the session.
	CriticalKeys []string `yaml:"criticalKeys"`
}

// critical reports whether key is configured as critical.
func (c Config) critical(key ctxstore.Key) bool {
	for _, k := range c.CriticalKeys {
		if k == key.String() {
			return true
		}
	}
	return false
}

// rank returns the authority rank of a source task within a namespace.
// Lower is more authoritative; tasks absent from the table rank last.
func (c Config) rank(namespace, sourceTask string) int {
	order, ok := c.SourcePriority[namespace]
	if !ok {
		return -1
	}
	for i, name := range order {
		if name == sourceTask {
			return i
		}
	}
	return len(order)
}
