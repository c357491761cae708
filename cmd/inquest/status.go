package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// runStatus queries a running inquest MCP server for one session's progress
// and prints the report as JSON.
func runStatus(flags cliFlags) error {
	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "inquest-cli",
		Version: version,
	}, nil)

	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: flags.MCPEndpoint}, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", flags.MCPEndpoint, err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "job_status",
		Arguments: map[string]any{"sessionId": flags.StatusSession},
	})
	if err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("job_status failed: %s", textContent(result))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.StructuredContent)
}

func textContent(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "unknown error"
}
