package artifact

import (
	"time"

	"github.com/dusk-indust/inquest/internal/conflict"
	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/score"
)

// Claim is one gate-approved statement in the final artifact.
type Claim struct {
	Key        ctxstore.Key   `json:"key"`
	Statement  string         `json:"statement"`
	Value      ctxstore.Value `json:"value"`
	Confidence float64        `json:"confidence"`
	Evidence   []string       `json:"evidence"` // supporting record IDs
	SourceTask string         `json:"sourceTask"`

	// Substituted is set when the original claim failed the gate and the
	// nearest approved alternative was used in its place.
	Substituted bool   `json:"substituted,omitempty"`
	Caveat      string `json:"caveat,omitempty"`
}

// Artifact is the structured output of a completed session. Rendering it
// into a human-readable report is a consumer concern.
type Artifact struct {
	SessionID   string    `json:"sessionID"`
	JobKey      string    `json:"jobKey"`
	GeneratedAt time.Time `json:"generatedAt"`

	Claims []Claim `json:"claims"`

	// Caveats are session-level annotations: escalated conflicts carried
	// through in degraded mode and tasks that degraded after retry.
	Caveats []string `json:"caveats,omitempty"`

	// Escalations are the unresolved conflicts accepted into the artifact.
	Escalations []conflict.Conflict `json:"escalations,omitempty"`

	Assessments []score.Decision `json:"assessments,omitempty"`
}
