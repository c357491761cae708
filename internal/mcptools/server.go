package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with all five orchestration tools
// registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "inquest",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_job",
		Description: "Start an investigation session for a job key. At most one session runs per key; a second submission while one is active fails. Optionally blocks until the artifact is ready.",
	}, svc.SubmitJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_status",
		Description: "Report a session's lifecycle state, per-phase task progress, and the structured halt reason if it halted.",
	}, svc.JobStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "context_flow",
		Description: "List a session's published context snapshot versions (what each phase saw) and the conflict-resolution mutations applied between them.",
	}, svc.ContextFlow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_conflicts",
		Description: "List every context conflict a session detected, with classification, resolution status, and rationale.",
	}, svc.ListConflicts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_claim",
		Description: "Run the evidence gate over a claim against a session's evidence ledger. Returns approved, rejected, or requires-alternative with a suggested substitute claim.",
	}, svc.ValidateClaim)

	return server
}

// RunMCPServer starts an HTTP server exposing the orchestration MCP tools.
func RunMCPServer(ctx context.Context, svc *Service, addr string) error {
	server := NewMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
