package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/inquest/internal/mcptools"
)

// serveMCP runs the process as an MCP tool server until interrupted.
func serveMCP(flags cliFlags) error {
	logger, err := newLogger(flags.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, _, err := wireCore(ctx, flags, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	svc := mcptools.NewService(core)
	fmt.Fprintf(os.Stderr, "inquest MCP server listening on %s\n", flags.MCPAddr)
	return mcptools.RunMCPServer(ctx, svc, flags.MCPAddr)
}
