package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/evidence"
	"github.com/dusk-indust/inquest/internal/orchestrator"
)

// Service holds the orchestration core used by MCP tool handlers.
type Service struct {
	core *orchestrator.Core
}

// NewService creates a Service over a wired Core.
func NewService(core *orchestrator.Core) *Service {
	return &Service{core: core}
}

// SubmitJob starts a session for a job key, optionally blocking for the
// artifact.
func (s *Service) SubmitJob(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitJobInput,
) (*mcp.CallToolResult, SubmitJobOutput, error) {
	if input.JobKey == "" {
		return nil, SubmitJobOutput{}, fmt.Errorf("jobKey is required")
	}

	seed, err := seedEntries(input.Seed)
	if err != nil {
		return nil, SubmitJobOutput{}, err
	}

	sessionID, err := s.core.Submit(ctx, input.JobKey, seed)
	if err != nil {
		return nil, SubmitJobOutput{}, err
	}

	out := SubmitJobOutput{SessionID: sessionID, Status: "running"}
	if !input.Wait {
		return nil, out, nil
	}

	art, err := s.core.Wait(ctx, sessionID)
	if err != nil {
		// A halt is a session outcome, not a tool failure.
		out.Status = "halted"
		out.Halt = err.Error()
		return nil, out, nil
	}
	out.Status = "completed"
	out.Artifact = art
	return nil, out, nil
}

// JobStatus reports a session's lifecycle state and phase progress.
func (s *Service) JobStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input JobStatusInput,
) (*mcp.CallToolResult, JobStatusOutput, error) {
	report, err := s.core.Monitor().Status(input.SessionID)
	if err != nil {
		return nil, JobStatusOutput{}, err
	}
	return nil, JobStatusOutput{
		SessionID:  report.Session.ID,
		JobKey:     report.Session.JobKey,
		Status:     string(report.Session.Status),
		Phases:     report.Phases,
		HaltReason: report.HaltReason,
	}, nil
}

// ContextFlow reports a session's published snapshot chain and resolution
// audit trail.
func (s *Service) ContextFlow(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ContextFlowInput,
) (*mcp.CallToolResult, ContextFlowOutput, error) {
	flow, err := s.core.Monitor().ContextFlow(input.SessionID)
	if err != nil {
		return nil, ContextFlowOutput{}, err
	}
	out := ContextFlowOutput{Versions: flow.Versions}
	for _, m := range flow.Mutations {
		out.Mutations = append(out.Mutations, MutationReport{
			Key:        m.Key.String(),
			ResolvedBy: m.ResolvedBy,
			Reason:     m.Reason,
		})
	}
	return nil, out, nil
}

// ListConflicts reports every conflict a session has processed.
func (s *Service) ListConflicts(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListConflictsInput,
) (*mcp.CallToolResult, ListConflictsOutput, error) {
	conflicts, err := s.core.Monitor().Conflicts(input.SessionID)
	if err != nil {
		return nil, ListConflictsOutput{}, err
	}
	out := ListConflictsOutput{Conflicts: make([]ConflictReport, 0, len(conflicts))}
	for _, c := range conflicts {
		out.Conflicts = append(out.Conflicts, ConflictReport{
			Key:            c.Key.String(),
			Classification: string(c.Classification),
			Status:         string(c.Status),
			Rationale:      c.Rationale,
			Critical:       c.Critical,
		})
	}
	return nil, out, nil
}

// ValidateClaim runs the evidence gate over one claim against a session's
// ledger.
func (s *Service) ValidateClaim(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateClaimInput,
) (*mcp.CallToolResult, ValidateClaimOutput, error) {
	if input.Claim == "" {
		return nil, ValidateClaimOutput{}, fmt.Errorf("claim is required")
	}
	ledger, err := s.core.Ledger(input.SessionID)
	if err != nil {
		return nil, ValidateClaimOutput{}, err
	}
	result, err := evidence.NewGate(ledger).Validate(ctx, input.Claim, input.Namespace)
	if err != nil {
		return nil, ValidateClaimOutput{}, err
	}
	return nil, ValidateClaimOutput{
		Decision:    string(result.Decision),
		Reason:      result.Reason,
		Alternative: result.Alternative,
	}, nil
}

// seedEntries converts "namespace/name": "value" pairs to context entries.
// Seed values are strings; typed findings come from investigators.
func seedEntries(seed map[string]string) ([]ctxstore.Entry, error) {
	entries := make([]ctxstore.Entry, 0, len(seed))
	for raw, value := range seed {
		ns, name, ok := strings.Cut(raw, "/")
		if !ok || ns == "" || name == "" {
			return nil, fmt.Errorf("seed key %q must be namespace/name", raw)
		}
		entries = append(entries, ctxstore.Entry{
			Key:        ctxstore.Key{Namespace: ns, Name: name},
			Value:      ctxstore.StringValue(value),
			SourceTask: "submit",
			Confidence: 1,
		})
	}
	return entries, nil
}
