package mcptools

import (
	"github.com/dusk-indust/inquest/internal/artifact"
	"github.com/dusk-indust/inquest/internal/observe"
)

// SubmitJobInput starts an investigation session.
type SubmitJobInput struct {
	JobKey string            `json:"jobKey" jsonschema:"the job identifier; at most one session may run per job key"`
	Seed   map[string]string `json:"seed,omitempty" jsonschema:"initial parameters as namespace/name to value pairs, e.g. {\"job/ticket\": \"INQ-42\"}"`
	Wait   bool              `json:"wait,omitempty" jsonschema:"block until the session finishes and include the artifact in the output"`
}

// SubmitJobOutput reports the started (or finished) session.
type SubmitJobOutput struct {
	SessionID string             `json:"sessionId"`
	Status    string             `json:"status"`
	Artifact  *artifact.Artifact `json:"artifact,omitempty"`
	Halt      string             `json:"halt,omitempty"`
}

// JobStatusInput queries one session's progress.
type JobStatusInput struct {
	SessionID string `json:"sessionId" jsonschema:"the session to query"`
}

// JobStatusOutput mirrors the observability status report.
type JobStatusOutput struct {
	SessionID  string                `json:"sessionId"`
	JobKey     string                `json:"jobKey"`
	Status     string                `json:"status"`
	Phases     []observe.PhaseReport `json:"phases,omitempty"`
	HaltReason string                `json:"haltReason,omitempty"`
}

// ContextFlowInput queries a session's snapshot chain.
type ContextFlowInput struct {
	SessionID string `json:"sessionId" jsonschema:"the session to query"`
}

// ContextFlowOutput lists every published snapshot version and the mutation
// audit trail.
type ContextFlowOutput struct {
	Versions  []observe.VersionReport `json:"versions"`
	Mutations []MutationReport        `json:"mutations,omitempty"`
}

// MutationReport is one resolution applied to the context, with provenance.
type MutationReport struct {
	Key        string `json:"key"`
	ResolvedBy string `json:"resolvedBy"`
	Reason     string `json:"reason"`
}

// ListConflictsInput queries a session's conflicts.
type ListConflictsInput struct {
	SessionID string `json:"sessionId" jsonschema:"the session to query"`
}

// ConflictReport is one classified conflict.
type ConflictReport struct {
	Key            string `json:"key"`
	Classification string `json:"classification"`
	Status         string `json:"status"`
	Rationale      string `json:"rationale,omitempty"`
	Critical       bool   `json:"critical,omitempty"`
}

// ListConflictsOutput lists a session's conflicts.
type ListConflictsOutput struct {
	Conflicts []ConflictReport `json:"conflicts"`
}

// ValidateClaimInput runs the evidence gate over one claim.
type ValidateClaimInput struct {
	SessionID string `json:"sessionId" jsonschema:"the session whose evidence ledger to consult"`
	Claim     string `json:"claim" jsonschema:"the claim text to validate against the evidence ledger"`
	Namespace string `json:"namespace,omitempty" jsonschema:"key namespace used to search for an alternative when the claim is unsupported"`
}

// ValidateClaimOutput is the gate's verdict.
type ValidateClaimOutput struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	Alternative string `json:"alternative,omitempty"`
}
